package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"tunedrop/internal/config"
	"tunedrop/internal/devicestore"
	"tunedrop/internal/logging"
	"tunedrop/internal/metrics"
	"tunedrop/internal/notifications"
	"tunedrop/internal/pairing"
	"tunedrop/internal/services"
	"tunedrop/internal/transfer"
)

// Orchestrator runs send sessions against one device store.
type Orchestrator struct {
	cfg       *config.Config
	store     *devicestore.Store
	logger    *slog.Logger
	presenter Presenter
	notifier  notifications.Service
	metrics   *metrics.Recorder
	progress  transfer.ProgressReporter
	lock      *flock.Flock
	now       func() time.Time
}

// Option configures optional Orchestrator behavior.
type Option func(*Orchestrator)

// WithPresenter sets the collaborator that shows the pairing code.
func WithPresenter(p Presenter) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.presenter = p
		}
	}
}

// WithNotifier replaces the notifier built from config (used in tests).
func WithNotifier(n notifications.Service) Option {
	return func(o *Orchestrator) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithMetrics records pairing and upload metrics into r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = r }
}

// WithProgress reports per-file upload progress.
func WithProgress(p transfer.ProgressReporter) Option {
	return func(o *Orchestrator) { o.progress = p }
}

// New constructs an Orchestrator.
func New(cfg *config.Config, store *devicestore.Store, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:       cfg,
		store:     store,
		logger:    logging.NewComponentLogger(logger, "workflow"),
		presenter: nopPresenter{},
		notifier:  notifications.NewService(cfg),
		lock:      flock.New(cfg.LockPath()),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one send run. The returned report is non-nil whenever the
// request was valid, including when err reports a pairing failure.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Report, error) {
	if len(req.Files) == 0 {
		return nil, services.Wrap(services.ErrValidation, "validate", "files", "no input files", nil)
	}

	release, err := o.acquireLock()
	if err != nil {
		return nil, err
	}
	defer release()

	runID := uuid.NewString()
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, o.logger)

	report := &Report{RunID: runID, StartedAt: o.now(), Files: make([]FileReport, len(req.Files))}
	for i, path := range req.Files {
		report.Files[i] = FileReport{Path: path, Status: StatusSkipped}
	}
	logger.Info("send run started", logging.Int("files", len(req.Files)))

	conn, err := o.connect(ctx, req)
	if err != nil {
		report.FinishedAt = o.now()
		o.finish(ctx, report, err)
		return report, err
	}
	defer func() {
		if closeErr := conn.session.Close(); closeErr != nil {
			logger.Debug("close device session", logging.Error(closeErr))
		}
	}()

	ctx = services.WithDeviceID(ctx, conn.session.DeviceID())
	report.DeviceID = conn.session.DeviceID()
	report.DeviceName = conn.session.DeviceName()
	report.Resumed = conn.resumed
	report.Resumable = conn.session.SaveRequested()
	o.presenter.Connected(report.DeviceName, conn.resumed)
	if err := o.notifier.NotifyPaired(ctx, report.DeviceName, conn.resumed); err != nil {
		logger.Debug("paired notification failed", logging.Error(err))
	}

	if err := o.saveDevice(ctx, conn.session); err != nil {
		report.DeviceSaveErr = err
		report.Resumable = false
		logging.WarnWithContext(logger, "device not saved; uploads will not be recorded", "device_save_failed",
			logging.String(logging.FieldErrorHint, "check the data directory is writable"),
			logging.Error(err),
		)
	}

	o.sendFiles(ctx, req, conn.session, report)

	report.FinishedAt = o.now()
	o.finish(ctx, report, nil)
	return report, nil
}

func (o *Orchestrator) acquireLock() (func(), error) {
	if err := os.MkdirAll(o.cfg.Paths.DataDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "lock", "create data dir", "", err)
	}
	ok, err := o.lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "lock", "acquire", "", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "lock", "acquire",
			fmt.Sprintf("another tunedrop session holds %s", o.cfg.LockPath()), nil)
	}
	return func() {
		if err := o.lock.Unlock(); err != nil {
			o.logger.Warn("failed to release session lock", logging.Error(err))
		}
	}, nil
}

// saveDevice persists the session's credentials so a later run can resume.
func (o *Orchestrator) saveDevice(ctx context.Context, session *pairing.DeviceSession) error {
	data, err := session.Credentials().Encode()
	if err != nil {
		return services.Wrap(services.ErrStore, "save device", "encode credentials", "", err)
	}
	device := devicestore.Device{ID: session.DeviceID(), Name: session.DeviceName(), Data: data}
	if err := o.store.SaveDevice(ctx, device); err != nil {
		return services.Wrap(services.ErrStore, "save device", "write", "", err)
	}
	o.logger.Info("device saved",
		logging.String(logging.FieldDeviceID, device.ID),
		logging.String("name", device.Name),
		logging.Bool("resumable", session.SaveRequested()),
	)
	return nil
}

func (o *Orchestrator) finish(ctx context.Context, report *Report, runErr error) {
	logger := logging.WithContext(ctx, o.logger)
	if o.metrics != nil {
		o.metrics.MarkRunComplete(report.FinishedAt)
		if path := o.cfg.Metrics.Textfile; path != "" {
			if err := o.metrics.WriteTextfile(path); err != nil {
				logger.Warn("write metrics textfile failed", logging.String("path", path), logging.Error(err))
			}
		}
	}

	if runErr != nil {
		logger.Error("send run failed", logging.Error(runErr))
		if err := o.notifier.NotifyError(ctx, runErr, "send"); err != nil {
			logger.Debug("error notification failed", logging.Error(err))
		}
		return
	}

	summary := report.Summary()
	logger.Info("send run finished",
		logging.Int("accepted", summary.Accepted),
		logging.Int("failed", summary.Failed),
		logging.Int("skipped", summary.Skipped),
		logging.Int("unsupported", summary.Unsupported),
		logging.Int("not_recorded", summary.UploadedNotRecorded),
		logging.Duration("elapsed", summary.Duration),
	)
	if err := o.notifier.NotifyRunCompleted(ctx, summary); err != nil {
		logger.Debug("completion notification failed", logging.Error(err))
	}
}
