// Package transfer uploads files to a paired device over its LAN HTTP
// endpoint.
//
// A Session binds the device's base URL and bearer token. Info probes the
// device for the file types it accepts; Upload streams one file as a
// multipart body with an exact Content-Length; UploadBatch runs many uploads
// with bounded concurrency and cancels the rest of the batch once the device
// stops accepting the token.
//
// Acceptance is transport level only: a 2xx status means the device received
// the bytes, not that its media library imported them.
package transfer
