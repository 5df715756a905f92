package transfer

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"tunedrop/internal/metadata"
)

// ErrSkipped marks batch jobs that never ran, or were cancelled mid-flight,
// because the batch stopped.
var ErrSkipped = errors.New("skipped")

// Job is one file queued for upload.
type Job struct {
	Path     string
	Metadata metadata.Metadata
}

// Result reports the fate of one job. Index is the job's position in the
// input slice; results arrive in completion order.
type Result struct {
	Index   int
	Job     Job
	Outcome *Outcome
	Err     error
	Skipped bool
}

// UploadBatch uploads jobs with at most concurrency uploads in flight. An
// ErrUnauthorized result cancels everything still queued or in flight; those
// jobs are delivered with Skipped set. The channel is closed after every job
// has produced exactly one result.
func (s *Session) UploadBatch(ctx context.Context, jobs []Job, concurrency int) <-chan Result {
	out := make(chan Result, len(jobs))
	if concurrency <= 0 {
		concurrency = 1
	}

	go func() {
		defer close(out)
		batchCtx, cancel := context.WithCancelCause(ctx)
		defer cancel(nil)

		skipped := func(index int, job Job) Result {
			return Result{
				Index:   index,
				Job:     job,
				Skipped: true,
				Err:     fmt.Errorf("%w: %v", ErrSkipped, context.Cause(batchCtx)),
			}
		}

		var g errgroup.Group
		g.SetLimit(concurrency)
		for i, job := range jobs {
			if batchCtx.Err() != nil {
				out <- skipped(i, job)
				continue
			}
			g.Go(func() error {
				if batchCtx.Err() != nil {
					out <- skipped(i, job)
					return nil
				}
				outcome, err := s.Upload(batchCtx, job.Path, job.Metadata)
				switch {
				case err == nil:
					out <- Result{Index: i, Job: job, Outcome: outcome}
				case errors.Is(err, ErrUnauthorized):
					cancel(err)
					out <- Result{Index: i, Job: job, Err: err}
				case batchCtx.Err() != nil:
					out <- skipped(i, job)
				default:
					out <- Result{Index: i, Job: job, Err: err}
				}
				return nil
			})
		}
		_ = g.Wait()
	}()
	return out
}
