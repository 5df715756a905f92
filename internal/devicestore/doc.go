// Package devicestore persists paired devices and the history of files sent
// to them in a SQLite database.
//
// The schema lives in embedded goose migrations applied on Open. A device row
// holds the peer's opaque connection data so later runs can resume without
// pairing again; file rows are keyed by (device, path) so re-sending a path
// updates its record instead of duplicating it, and every file row points at
// a metadata row scoped to the same device.
//
// Write failures are reported as ErrWriteFailed. Busy database errors are
// retried with a short exponential backoff before surfacing.
package devicestore
