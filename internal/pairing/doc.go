// Package pairing establishes and maintains the trusted websocket channel
// between tunedrop and the companion app.
//
// A fresh pairing starts with BeginPairing, which generates a short numeric
// code, binds a listener and returns a Handle whose descriptor can be shown
// to the user as text or a QR code. The app connects to the descriptor and
// runs the handshake:
//
//	peer   -> hello    {version, code, device{id,name}}
//	sender -> welcome  {version, is_saved, sender}
//	peer   -> lan_url  {url_lan, token, push_token?}
//
// AwaitPeer blocks until the handshake completes, the timeout fires, or the
// context is cancelled, and always releases the listener exactly once. Devices
// that shared a push token can later be reached with Resume, which dials the
// peer's resume endpoint instead of showing a code.
//
// Both paths return a DeviceSession that keeps the websocket alive with pings
// until Close is called or the peer goes away. Messages are decoded strictly:
// missing required fields are ErrPeerRejected, unknown message types or
// protocol versions are ErrVersionMismatch.
package pairing
