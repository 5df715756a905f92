package preflight

import (
	"context"

	"tunedrop/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the environment checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{CheckDirectoryAccess("Data directory", cfg.Paths.DataDir)}
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}
	results = append(results, CheckListenAddr(ctx, cfg.Pairing.ListenAddr))
	results = append(results, CheckDatabase(ctx, cfg.DatabasePath()))
	return results
}

// CheckInputs checks every input file and returns only the failures.
func CheckInputs(paths []string) []Result {
	var failed []Result
	for _, path := range paths {
		if result := CheckReadableFile(path); !result.Passed {
			failed = append(failed, result)
		}
	}
	return failed
}

// Failed reports whether any result did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}
