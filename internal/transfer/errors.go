package transfer

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionReset reports that no HTTP response was received.
	ErrConnectionReset = errors.New("connection reset")
	// ErrUnauthorized reports a rejected or expired session token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrPayloadTooLarge reports that the device refused the file size.
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrServerError reports any other non-2xx response.
	ErrServerError = errors.New("server error")
)

// UploadError describes a failed upload of one file.
type UploadError struct {
	Path       string
	Attempts   int
	StatusCode int
	Err        error
}

func (e *UploadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upload %s: status %d after %d attempt(s): %v", e.Path, e.StatusCode, e.Attempts, e.Err)
	}
	return fmt.Sprintf("upload %s after %d attempt(s): %v", e.Path, e.Attempts, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// classifyStatus maps a non-2xx status onto a sentinel.
func classifyStatus(code int) error {
	switch {
	case code == 401 || code == 403:
		return ErrUnauthorized
	case code == 413:
		return ErrPayloadTooLarge
	default:
		return ErrServerError
	}
}
