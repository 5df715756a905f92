// Package notifications delivers run events via ntfy.
//
// The default implementation publishes to the topic configured in config.toml
// and degrades to a no-op when notifications are disabled. The orchestrator
// reports pairing, run completion and fatal errors through the small Service
// interface.
package notifications
