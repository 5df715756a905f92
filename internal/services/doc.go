// Package services defines shared utilities consumed by the send workflow and
// its supporting packages.
//
// Context helpers stamp run IDs, device IDs, stage names, and file paths so
// logging can attach them without threading extra parameters. Wrap tags
// failures with a marker (pairing, transport, store, ...) and the stage they
// happened in; ExitCode turns those markers into process exit statuses.
package services
