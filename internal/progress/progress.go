package progress

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"tunedrop/internal/logging"
	"tunedrop/internal/transfer"
)

// Reporter creates progress trackers for uploads.
type Reporter struct {
	out    io.Writer
	bars   bool
	logger *slog.Logger
	mu     sync.Mutex
}

// Options configures a Reporter.
type Options struct {
	// Out receives progress bars. Defaults to stderr.
	Out io.Writer
	// Bars forces bar rendering on or off. When nil it is enabled only when
	// Out is a terminal.
	Bars   *bool
	Logger *slog.Logger
}

// New constructs a Reporter.
func New(opts Options) *Reporter {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	bars := IsTerminal(out)
	if opts.Bars != nil {
		bars = *opts.Bars
	}
	return &Reporter{
		out:    out,
		bars:   bars,
		logger: logging.NewComponentLogger(opts.Logger, "progress"),
	}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Start begins tracking one upload attempt.
func (r *Reporter) Start(path string, size int64) transfer.ProgressTracker {
	name := filepath.Base(path)
	if r.bars {
		r.mu.Lock()
		defer r.mu.Unlock()
		bar := progressbar.NewOptions64(size,
			progressbar.OptionSetWriter(r.out),
			progressbar.OptionSetDescription(truncate(name, 32)),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionShowCount(),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(r.out) }),
			progressbar.OptionSetPredictTime(true),
		)
		return &barTracker{bar: bar}
	}
	return &logTracker{
		path:    path,
		size:    size,
		sampler: logging.NewProgressSampler(25),
		logger:  r.logger.With(logging.String(logging.FieldFile, path)),
	}
}

type barTracker struct {
	bar *progressbar.ProgressBar
}

func (t *barTracker) Write(p []byte) (int, error) {
	return t.bar.Write(p)
}

func (t *barTracker) Finish(err error) {
	if err != nil {
		_ = t.bar.Exit()
		return
	}
	_ = t.bar.Finish()
}

type logTracker struct {
	path    string
	size    int64
	sent    int64
	sampler *logging.ProgressSampler
	logger  *slog.Logger
}

func (t *logTracker) Write(p []byte) (int, error) {
	t.sent += int64(len(p))
	percent := -1.0
	if t.size > 0 {
		percent = float64(t.sent) * 100 / float64(t.size)
	}
	if t.sampler.ShouldLog(percent, t.path) {
		t.logger.Debug("upload progress",
			logging.Int64("sent_bytes", t.sent),
			logging.Int64("total_bytes", t.size),
			logging.Int("percent", int(percent)),
		)
	}
	return len(p), nil
}

func (t *logTracker) Finish(err error) {
	if err != nil {
		t.logger.Debug("upload interrupted", logging.Int64("sent_bytes", t.sent), logging.Error(err))
	}
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
