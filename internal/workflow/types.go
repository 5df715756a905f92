package workflow

import (
	"errors"
	"time"

	"tunedrop/internal/metadata"
	"tunedrop/internal/notifications"
)

// Status is the final state of one file in a run.
type Status string

const (
	// StatusAccepted means the device confirmed receipt and the upload was
	// recorded. Import by the device's app is not confirmed.
	StatusAccepted Status = "accepted"
	// StatusFailed means the file was not delivered.
	StatusFailed Status = "failed"
	// StatusSkipped means the run stopped before the file was sent.
	StatusSkipped Status = "skipped"
	// StatusUploadedNotRecorded means the device received the file but the
	// local record could not be written.
	StatusUploadedNotRecorded Status = "uploaded_not_recorded"
	// StatusUnsupported means the device does not accept the file type.
	StatusUnsupported Status = "unsupported"
)

// ImportUnknownNote accompanies every accepted file.
const ImportUnknownNote = "received by device; import not confirmed"

// ErrUnsupportedType marks files the device does not list as supported.
var ErrUnsupportedType = errors.New("file type not supported by device")

// Request describes one send run.
type Request struct {
	Files []string
	// Device selects a saved device by ID or name. Empty forces pairing.
	Device string
	// PairingTimeout overrides the configured wait for a peer.
	PairingTimeout time.Duration
	// Concurrency overrides the configured number of parallel uploads.
	Concurrency int
}

// FileReport is the outcome for one input file.
type FileReport struct {
	Path     string
	Status   Status
	Metadata metadata.Metadata
	Attempts int
	Bytes    int64
	Duration time.Duration
	Err      error
	Note     string
}

// Report is the result of a run, one entry per input file in input order.
type Report struct {
	RunID      string
	DeviceID   string
	DeviceName string
	Resumed    bool
	Resumable  bool
	Files      []FileReport
	StartedAt  time.Time
	FinishedAt time.Time
	// DeviceSaveErr is set when the paired device could not be stored. The
	// files were then not recorded either and the device cannot be resumed.
	DeviceSaveErr error
}

// Count returns how many files ended with status.
func (r *Report) Count(status Status) int {
	if r == nil {
		return 0
	}
	n := 0
	for _, f := range r.Files {
		if f.Status == status {
			n++
		}
	}
	return n
}

// Complete reports whether every file was accepted and the device saved.
func (r *Report) Complete() bool {
	return r != nil && r.DeviceSaveErr == nil && r.Count(StatusAccepted) == len(r.Files)
}

// Summary condenses the report for notifications.
func (r *Report) Summary() notifications.RunSummary {
	if r == nil {
		return notifications.RunSummary{}
	}
	return notifications.RunSummary{
		DeviceName:          r.DeviceName,
		Accepted:            r.Count(StatusAccepted),
		Failed:              r.Count(StatusFailed),
		Skipped:             r.Count(StatusSkipped),
		Unsupported:         r.Count(StatusUnsupported),
		UploadedNotRecorded: r.Count(StatusUploadedNotRecorded),
		Duration:            r.FinishedAt.Sub(r.StartedAt),
		DeviceNotSaved:      r.DeviceSaveErr != nil,
	}
}

// Presenter shows pairing progress to the user.
type Presenter interface {
	// PairingStarted is called once the listener is ready and the code can
	// be shown.
	PairingStarted(code, descriptor string)
	// Connected is called when a device session is established.
	Connected(deviceName string, resumed bool)
}

type nopPresenter struct{}

func (nopPresenter) PairingStarted(string, string) {}
func (nopPresenter) Connected(string, bool)        {}
