// Package metrics counts pairing and upload results in a Prometheus registry.
//
// The CLI writes the registry to a node_exporter textfile after each run when
// [metrics].textfile is configured; the peer emulator serves its own registry
// on /metrics. A nil *Recorder ignores every observation.
package metrics
