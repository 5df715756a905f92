package pairing

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tunedrop/internal/logging"
)

type pairResult struct {
	session *DeviceSession
	err     error
}

// Handle is one pairing attempt: a listener, its code, and the state of the
// handshake running against it.
type Handle struct {
	channel    *Channel
	code       string
	descriptor string
	listener   net.Listener
	server     *http.Server
	logger     *slog.Logger

	mu       sync.Mutex
	state    State
	attempts int
	pending  *websocket.Conn

	result      chan pairResult
	releaseOnce sync.Once
	released    chan struct{}
}

func newHandle(c *Channel, code string, listener net.Listener) *Handle {
	port := 0
	if tcp, ok := listener.Addr().(*net.TCPAddr); ok {
		port = tcp.Port
	}
	host := advertiseHost(c.opts.AdvertiseHost, listener.Addr())
	return &Handle{
		channel:    c,
		code:       code,
		descriptor: BuildDescriptor(host, port, code),
		listener:   listener,
		logger:     c.logger,
		state:      StateIdle,
		result:     make(chan pairResult, 1),
		released:   make(chan struct{}),
	}
}

// Code returns the pairing code the user enters in the app.
func (h *Handle) Code() string { return h.code }

// Descriptor returns the URL encoded into the QR code.
func (h *Handle) Descriptor() string { return h.descriptor }

// Addr returns the bound listener address.
func (h *Handle) Addr() net.Addr { return h.listener.Addr() }

// State returns the current handshake state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Released is closed once the listener has been shut down.
func (h *Handle) Released() <-chan struct{} { return h.released }

func (h *Handle) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// finishLocked moves the handle into a terminal state and publishes the result.
// Callers must hold h.mu. It reports false when the handle already finished.
func (h *Handle) finishLocked(res pairResult) bool {
	if h.state.Terminal() {
		return false
	}
	if res.err != nil {
		h.state = StateFailed
	} else {
		h.state = StatePaired
	}
	h.result <- res
	return true
}

// abort fails the handle unless a peer completed pairing first, in which case
// that session is returned.
func (h *Handle) abort(kind error, cause error) (*DeviceSession, error) {
	h.mu.Lock()
	state := h.state
	if state.Terminal() {
		h.mu.Unlock()
		h.release()
		select {
		case res := <-h.result:
			return res.session, res.err
		default:
			return nil, newError(kind, state, cause)
		}
	}
	h.state = StateFailed
	pending := h.pending
	h.pending = nil
	h.mu.Unlock()

	if pending != nil {
		_ = pending.Close()
	}
	h.release()
	h.logger.Info("pairing abandoned", logging.String("state", state.String()), logging.Error(cause))
	return nil, newError(kind, state, cause)
}

// release shuts the listener down exactly once. Sessions that already left
// the handle keep their own connections.
func (h *Handle) release() {
	h.releaseOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if h.server != nil {
			if err := h.server.Shutdown(ctx); err != nil {
				_ = h.server.Close()
			}
		}
		_ = h.listener.Close()
		close(h.released)
	})
}
