// Package workflow sequences one send run: connect to a device, upload the
// requested files, and record what the device accepted.
//
// The Orchestrator resumes a saved device when one is selected, falling back
// to a fresh pairing exactly once when the stored session is stale. After the
// peer is paired the device is saved before any upload starts so a later run
// can resume even if this one fails mid-transfer. Files the device does not
// advertise support for are reported as unsupported, metadata is extracted
// per file, and uploads run through transfer.Session.UploadBatch. Accepted
// uploads are recorded in the device store sequentially on the orchestrator
// goroutine.
//
// Every run produces a Report with one entry per input file in input order,
// including runs that fail part way through. Pairing failures abort the run
// with an error that names the failed stage.
package workflow
