package pairing

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tunedrop/internal/logging"
)

// ErrSessionClosed is returned by Err after Close.
var ErrSessionClosed = errors.New("device session closed")

// DeviceSession is a live, authorized channel to a paired device.
type DeviceSession struct {
	creds     Credentials
	conn      *websocket.Conn
	keepalive time.Duration
	logger    *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

func newDeviceSession(conn *websocket.Conn, creds Credentials, keepalive time.Duration, logger *slog.Logger) *DeviceSession {
	if keepalive <= 0 {
		keepalive = defaultKeepalive
	}
	s := &DeviceSession{
		creds:     creds,
		conn:      conn,
		keepalive: keepalive,
		logger:    logger.With(logging.String(logging.FieldDeviceID, creds.DeviceID)),
		done:      make(chan struct{}),
	}
	go s.readPump()
	go s.pingPump()
	return s
}

// Credentials returns the connection data negotiated for this session.
func (s *DeviceSession) Credentials() Credentials { return s.creds }

// DeviceID returns the peer's stable identifier.
func (s *DeviceSession) DeviceID() string { return s.creds.DeviceID }

// DeviceName returns the peer's display name.
func (s *DeviceSession) DeviceName() string { return s.creds.DeviceName }

// BaseURL returns the peer's HTTP upload endpoint.
func (s *DeviceSession) BaseURL() string { return s.creds.URLLAN }

// Token returns the bearer token for uploads.
func (s *DeviceSession) Token() string { return s.creds.Token }

// SaveRequested reports whether the peer shared a push token, asking to be
// remembered.
func (s *DeviceSession) SaveRequested() bool { return s.creds.Resumable() }

// Done is closed when the channel is lost or closed.
func (s *DeviceSession) Done() <-chan struct{} { return s.done }

// Err reports why the session ended, or nil while it is alive.
func (s *DeviceSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close sends a close frame and releases the socket. It is safe to call more
// than once.
func (s *DeviceSession) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
			time.Now().Add(writeWait))
		closeErr = s.conn.Close()
		s.setErr(ErrSessionClosed)
		close(s.done)
	})
	return closeErr
}

func (s *DeviceSession) lost(err error) {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
		s.setErr(err)
		close(s.done)
		s.logger.Info("device channel lost", logging.Error(err))
	})
}

func (s *DeviceSession) setErr(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

// readPump drains peer frames so pongs are processed and extends the read
// deadline on each one.
func (s *DeviceSession) readPump() {
	pongWait := s.keepalive * 3
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.lost(err)
			return
		}
		if reason, ok := peerErrorReason(data); ok {
			s.lost(fmt.Errorf("%w: peer error: %s", ErrPeerRejected, reason))
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

func (s *DeviceSession) pingPump() {
	ticker := time.NewTicker(s.keepalive)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.lost(err)
				return
			}
		}
	}
}
