package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrPairing       = errors.New("pairing error")
	ErrTransport     = errors.New("transport error")
	ErrStore         = errors.New("store error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Exit codes reported by the CLI for a failed run.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitUsage         = 2
	ExitPairing       = 3
	ExitTransport     = 4
	ExitStore         = 5
	ExitPartialUpload = 6
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ExitCode maps a run error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration), errors.Is(err, ErrNotFound):
		return ExitUsage
	case errors.Is(err, ErrPairing), errors.Is(err, ErrTimeout):
		return ExitPairing
	case errors.Is(err, ErrTransport):
		return ExitTransport
	case errors.Is(err, ErrStore):
		return ExitStore
	default:
		return ExitFailure
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
