// Package fileutil writes streamed file payloads to disk.
//
// Writes go through a sibling ".partial" file and are renamed into place only
// after the whole stream has been copied, so an interrupted upload never
// leaves a truncated file under its final name. Each write reports a SHA256
// digest that callers can compare against the source.
package fileutil
