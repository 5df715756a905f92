// Package progress renders per-file upload progress. On an interactive
// terminal each upload gets a progress bar; otherwise progress is written as
// sampled log lines so redirected output stays readable.
package progress
