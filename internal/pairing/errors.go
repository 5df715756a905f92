package pairing

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout reports that no peer completed the handshake in time.
	ErrTimeout = errors.New("pairing timed out")
	// ErrVersionMismatch reports an unsupported protocol version or message type.
	ErrVersionMismatch = errors.New("protocol version mismatch")
	// ErrPeerRejected reports a malformed, refused, or wrong-code handshake.
	ErrPeerRejected = errors.New("peer rejected")
	// ErrStaleSession reports that stored credentials can no longer reach the peer.
	ErrStaleSession = errors.New("stale session")
	// ErrCancelled reports that the caller abandoned pairing.
	ErrCancelled = errors.New("pairing cancelled")
)

// Error is a pairing failure annotated with the state it happened in.
type Error struct {
	Kind  error
	State State
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%v while %s: %v", e.Kind, e.State, e.Err)
	}
	return fmt.Sprintf("%v while %s", e.Kind, e.State)
}

// Unwrap exposes both the kind sentinel and the underlying cause to errors.Is.
func (e *Error) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func newError(kind error, state State, err error) *Error {
	return &Error{Kind: kind, State: state, Err: err}
}

// kindOf returns the sentinel carried by err, defaulting to ErrPeerRejected.
func kindOf(err error) error {
	for _, kind := range []error{ErrVersionMismatch, ErrPeerRejected, ErrTimeout, ErrCancelled, ErrStaleSession} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrPeerRejected
}
