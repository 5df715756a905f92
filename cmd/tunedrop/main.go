package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"tunedrop/internal/services"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(exitCode(err))
	}
}

// partialError reports a run that finished with files not accepted.
type partialError struct {
	notAccepted int
	total       int
}

func (e *partialError) Error() string {
	return fmt.Sprintf("%d of %d files were not accepted", e.notAccepted, e.total)
}

func exitCode(err error) int {
	var partial *partialError
	if errors.As(err, &partial) {
		return services.ExitPartialUpload
	}
	return services.ExitCode(err)
}
