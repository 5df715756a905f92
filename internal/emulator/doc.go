// Package emulator implements the companion app's side of the protocol on a
// loopback or LAN address.
//
// A Peer serves the device HTTP API (GET /info, POST /upload, websocket
// /resume, /metrics) with gin and can join a pairing descriptor the way the
// app does after scanning a QR code. Uploads are authorized with HS256 JWTs
// issued per session and can be written to a directory for inspection.
//
// The Peer doubles as a test harness: hooks drop the next upload of a given
// file mid-request, refuse resumes, or revoke every issued token.
package emulator
