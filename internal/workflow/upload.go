package workflow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"tunedrop/internal/logging"
	"tunedrop/internal/metadata"
	"tunedrop/internal/pairing"
	"tunedrop/internal/preflight"
	"tunedrop/internal/services"
	"tunedrop/internal/transfer"
)

// sendFiles uploads the requested files and fills report in place.
func (o *Orchestrator) sendFiles(ctx context.Context, req Request, session *pairing.DeviceSession, report *Report) {
	ctx = services.WithStage(ctx, "transfer")
	logger := logging.WithContext(ctx, o.logger)

	opts := transfer.OptionsFromConfig(o.cfg)
	opts.Logger = o.logger
	opts.Progress = o.progress
	client := transfer.NewClient(opts)

	ts, err := client.Open(transfer.Authorization{BaseURL: session.BaseURL(), Token: session.Token()})
	if err != nil {
		markAll(report, StatusFailed, services.Wrap(services.ErrTransport, "transfer", "open session", "", err))
		return
	}

	info, err := ts.Info(ctx)
	switch {
	case errors.Is(err, transfer.ErrUnauthorized):
		markAll(report, StatusSkipped, services.Wrap(services.ErrTransport, "transfer", "device info", "", err))
		return
	case err != nil:
		logger.Warn("device info unavailable; sending every file", logging.Error(err))
		info = nil
	default:
		logger.Info("device info",
			logging.String("device", info.DeviceName),
			logging.String("app", info.AppName),
			logging.Int("app_version", info.AppVersion),
		)
	}

	jobs, indices := o.prepareJobs(ctx, req.Files, info, report)
	if len(jobs) == 0 {
		return
	}

	concurrency := req.Concurrency
	if concurrency <= 0 {
		concurrency = o.cfg.Transfer.Concurrency
	}
	for res := range ts.UploadBatch(ctx, jobs, concurrency) {
		o.applyResult(ctx, session.DeviceID(), res, &report.Files[indices[res.Index]])
	}
}

// prepareJobs filters unreadable and unsupported files and extracts metadata
// for the rest. indices maps job positions back to report entries.
func (o *Orchestrator) prepareJobs(ctx context.Context, files []string, info *transfer.DeviceInfo, report *Report) ([]transfer.Job, []int) {
	logger := logging.WithContext(ctx, o.logger)
	jobs := make([]transfer.Job, 0, len(files))
	indices := make([]int, 0, len(files))
	for i, path := range files {
		entry := &report.Files[i]
		if check := preflight.CheckReadableFile(path); !check.Passed {
			entry.Status = StatusFailed
			entry.Err = fmt.Errorf("%w: %s", metadata.ErrUnreadableFile, check.Detail)
			continue
		}
		if info != nil && !info.Supports(path) {
			entry.Status = StatusUnsupported
			entry.Err = fmt.Errorf("%w: %s", ErrUnsupportedType, transfer.ContentType(path))
			continue
		}
		md, err := metadata.Extract(path)
		if err != nil {
			entry.Status = StatusFailed
			entry.Err = err
			logger.Warn("metadata extraction failed", logging.String(logging.FieldFile, path), logging.Error(err))
			continue
		}
		entry.Metadata = md
		jobs = append(jobs, transfer.Job{Path: path, Metadata: md})
		indices = append(indices, i)
	}
	return jobs, indices
}

// applyResult records an accepted upload and fills entry with the outcome.
func (o *Orchestrator) applyResult(ctx context.Context, deviceID string, res transfer.Result, entry *FileReport) {
	logger := logging.WithContext(services.WithFile(ctx, res.Job.Path), o.logger)
	switch {
	case res.Skipped:
		entry.Status = StatusSkipped
		entry.Err = res.Err
		return
	case res.Err != nil:
		entry.Status = StatusFailed
		entry.Err = res.Err
		var uploadErr *transfer.UploadError
		if errors.As(res.Err, &uploadErr) {
			entry.Attempts = uploadErr.Attempts
		}
		o.metrics.ObserveUpload(string(StatusFailed), 0, entry.Attempts, 0)
		logger.Warn("upload failed", logging.Int("attempts", entry.Attempts), logging.Error(res.Err))
		return
	}

	outcome := res.Outcome
	entry.Attempts = outcome.Attempts
	entry.Bytes = outcome.Bytes
	entry.Duration = outcome.Duration

	recordPath := res.Job.Path
	if abs, err := filepath.Abs(recordPath); err == nil {
		recordPath = abs
	}
	if _, err := o.store.RecordUpload(ctx, deviceID, recordPath, res.Job.Metadata); err != nil {
		entry.Status = StatusUploadedNotRecorded
		entry.Err = services.Wrap(services.ErrStore, "record", "record upload", "", err)
		entry.Note = "received by device; local history not updated"
		o.metrics.ObserveUpload(string(StatusUploadedNotRecorded), outcome.Bytes, outcome.Attempts, outcome.Duration)
		logging.WarnWithContext(logger, "upload accepted but not recorded", "record_failed",
			logging.String(logging.FieldImpact, "the file may be sent again on a later run"),
			logging.Error(err),
		)
		return
	}
	entry.Status = StatusAccepted
	entry.Note = ImportUnknownNote
	o.metrics.ObserveUpload(string(StatusAccepted), outcome.Bytes, outcome.Attempts, outcome.Duration)
}

func markAll(report *Report, status Status, err error) {
	for i := range report.Files {
		report.Files[i].Status = status
		report.Files[i].Err = err
	}
}
