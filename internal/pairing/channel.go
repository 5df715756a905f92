package pairing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"tunedrop/internal/config"
	"tunedrop/internal/logging"
)

const (
	defaultHandshakeTimeout = 15 * time.Second
	defaultKeepalive        = 20 * time.Second
	writeWait               = 10 * time.Second
	maxMessageSize          = 16 * 1024
)

// Options configures a Channel.
type Options struct {
	ListenAddr        string
	AdvertiseHost     string
	CodeLength        int
	HandshakeTimeout  time.Duration
	KeepaliveInterval time.Duration
	MaxAttempts       int
	// SenderName is shown to the peer in the welcome message.
	SenderName string
	// Known reports whether a device ID is already stored; it sets the
	// welcome's is_saved flag.
	Known  func(deviceID string) bool
	Logger *slog.Logger
}

// OptionsFromConfig maps the [pairing] config section onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return Options{}
	}
	return Options{
		ListenAddr:        cfg.Pairing.ListenAddr,
		AdvertiseHost:     cfg.Pairing.AdvertiseHost,
		CodeLength:        cfg.Pairing.CodeLength,
		HandshakeTimeout:  cfg.HandshakeTimeout(),
		KeepaliveInterval: cfg.KeepaliveInterval(),
		MaxAttempts:       cfg.Pairing.MaxAttempts,
	}
}

// Channel creates pairing handles and resumes stored sessions.
type Channel struct {
	opts   Options
	dialer *websocket.Dialer
	logger *slog.Logger
}

// New constructs a Channel, filling unset options with defaults.
func New(opts Options) *Channel {
	if opts.ListenAddr == "" {
		opts.ListenAddr = ":0"
	}
	if opts.CodeLength == 0 {
		opts.CodeLength = 6
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.KeepaliveInterval <= 0 {
		opts.KeepaliveInterval = defaultKeepalive
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.SenderName == "" {
		opts.SenderName = "tunedrop"
	}
	return &Channel{
		opts: opts,
		dialer: &websocket.Dialer{
			HandshakeTimeout: opts.HandshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		logger: logging.NewComponentLogger(opts.Logger, "pairing"),
	}
}

// BeginPairing generates a code, binds the listener and starts accepting
// handshakes. It returns without waiting for a peer.
func (c *Channel) BeginPairing(ctx context.Context) (*Handle, error) {
	code, err := GenerateCode(c.opts.CodeLength)
	if err != nil {
		return nil, newError(ErrCancelled, StateIdle, err)
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", c.opts.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", c.opts.ListenAddr, err)
	}

	h := newHandle(c, code, listener)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /pair", h.handlePair)
	h.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: c.opts.HandshakeTimeout,
	}
	h.setState(StateListening)

	go func() {
		if err := h.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Debug("pairing listener stopped", logging.Error(err))
		}
	}()

	c.logger.Info("pairing listener ready",
		logging.String("addr", listener.Addr().String()),
		logging.String("descriptor", h.descriptor),
	)
	return h, nil
}

// AwaitPeer waits for the handle's handshake to finish. On timeout or
// cancellation the listener and any half-open connection are released and the
// handle ends in StateFailed.
func (c *Channel) AwaitPeer(ctx context.Context, h *Handle, timeout time.Duration) (*DeviceSession, error) {
	if h == nil {
		return nil, newError(ErrCancelled, StateIdle, errors.New("nil handle"))
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-h.result:
		h.release()
		return res.session, res.err
	case <-timer.C:
		return h.abort(ErrTimeout, fmt.Errorf("no peer within %s", timeout))
	case <-ctx.Done():
		return h.abort(ErrCancelled, ctx.Err())
	}
}
