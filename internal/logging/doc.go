// Package logging assembles structured slog loggers and formatting helpers used
// across tunedrop.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pairing and transfer code can
// tag log lines with the run ID, device ID, stage and file automatically. The
// package also provides a no-op logger for tests and wiring code that cannot
// fail.
package logging
