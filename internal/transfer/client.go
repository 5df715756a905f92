package transfer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tunedrop/internal/config"
	"tunedrop/internal/logging"
)

const (
	defaultUploadTimeout = 10 * time.Minute
	defaultRetryBackoff  = time.Second
	defaultInfoTimeout   = 15 * time.Second
)

// ProgressReporter creates a tracker for each upload attempt.
type ProgressReporter interface {
	Start(path string, size int64) ProgressTracker
}

// ProgressTracker receives the file bytes as they are sent.
type ProgressTracker interface {
	io.Writer
	Finish(err error)
}

// Options configures a Client.
type Options struct {
	HTTPClient    *http.Client
	UploadTimeout time.Duration
	RetryBackoff  time.Duration
	InfoTimeout   time.Duration
	Progress      ProgressReporter
	Logger        *slog.Logger
	// Now is used for token expiry checks.
	Now func() time.Time
}

// OptionsFromConfig maps the [transfer] config section onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return Options{}
	}
	return Options{
		UploadTimeout: cfg.UploadTimeout(),
		RetryBackoff:  cfg.RetryBackoff(),
	}
}

// Client opens transfer sessions.
type Client struct {
	http          *http.Client
	uploadTimeout time.Duration
	retryBackoff  time.Duration
	infoTimeout   time.Duration
	progress      ProgressReporter
	logger        *slog.Logger
	now           func() time.Time
}

// NewClient constructs a Client, filling unset options with defaults.
func NewClient(opts Options) *Client {
	c := &Client{
		http:          opts.HTTPClient,
		uploadTimeout: opts.UploadTimeout,
		retryBackoff:  opts.RetryBackoff,
		infoTimeout:   opts.InfoTimeout,
		progress:      opts.Progress,
		logger:        logging.NewComponentLogger(opts.Logger, "transfer"),
		now:           opts.Now,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.uploadTimeout <= 0 {
		c.uploadTimeout = defaultUploadTimeout
	}
	if c.retryBackoff <= 0 {
		c.retryBackoff = defaultRetryBackoff
	}
	if c.infoTimeout <= 0 {
		c.infoTimeout = defaultInfoTimeout
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Authorization identifies a paired device's upload endpoint.
type Authorization struct {
	BaseURL string
	Token   string
}

// Session uploads to one paired device.
type Session struct {
	client *Client
	base   *url.URL
	token  string
}

// Open binds a session to the device described by auth.
func (c *Client) Open(auth Authorization) (*Session, error) {
	if strings.TrimSpace(auth.Token) == "" {
		return nil, errors.New("open session: token is required")
	}
	base, err := url.Parse(strings.TrimSpace(auth.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("open session: parse base url: %w", err)
	}
	if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("open session: base url %q is not http", auth.BaseURL)
	}
	return &Session{client: c, base: base, token: auth.Token}, nil
}

func (s *Session) endpoint(name string) string {
	u := *s.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + name
	u.RawQuery = ""
	return u.String()
}

func (s *Session) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.token)
}
