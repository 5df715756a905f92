package pairing

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"tunedrop/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The companion app is not a browser and sends no Origin header.
	CheckOrigin: func(r *http.Request) bool { return true },
}

var errWrongCode = errors.New("wrong pairing code")

// handlePair upgrades one peer connection and runs the handshake on it. Only
// one handshake runs at a time.
func (h *Handle) handlePair(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	switch h.state {
	case StateListening:
		h.state = StateHandshaking
	case StateHandshaking:
		h.mu.Unlock()
		http.Error(w, "pairing in progress", http.StatusConflict)
		return
	default:
		h.mu.Unlock()
		http.Error(w, "pairing closed", http.StatusGone)
		return
	}
	h.mu.Unlock()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("pairing upgrade failed", logging.Error(err))
		h.backToListening()
		return
	}

	h.mu.Lock()
	if h.state != StateHandshaking {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.pending = conn
	h.mu.Unlock()

	session, err := h.handshake(conn)
	if err != nil {
		h.handshakeFailed(conn, err)
		return
	}

	h.mu.Lock()
	h.pending = nil
	if !h.finishLocked(pairResult{session: session}) {
		h.mu.Unlock()
		_ = session.Close()
		return
	}
	h.mu.Unlock()
	h.logger.Info("peer paired",
		logging.String(logging.FieldDeviceID, session.DeviceID()),
		logging.String("device_name", session.DeviceName()),
		logging.Bool("save_requested", session.SaveRequested()),
	)
}

func (h *Handle) handshake(conn *websocket.Conn) (*DeviceSession, error) {
	opts := h.channel.opts
	conn.SetReadLimit(maxMessageSize)
	deadline := time.Now().Add(opts.HandshakeTimeout)
	_ = conn.SetReadDeadline(deadline)
	_ = conn.SetWriteDeadline(deadline)

	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read hello: %w", err)
	}
	hello, err := DecodeHello(data)
	if err != nil {
		return nil, err
	}
	if hello.Code != h.code {
		return nil, errWrongCode
	}

	known := false
	if opts.Known != nil {
		known = opts.Known(hello.Device.ID)
	}
	if err := conn.WriteJSON(Welcome{
		Type:    TypeWelcome,
		Version: ProtocolVersion,
		IsSaved: known,
		Sender:  opts.SenderName,
	}); err != nil {
		return nil, fmt.Errorf("write welcome: %w", err)
	}

	_, data, err = conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read lan_url: %w", err)
	}
	lan, err := DecodeLANURL(data)
	if err != nil {
		return nil, err
	}

	_ = conn.SetReadDeadline(time.Time{})
	_ = conn.SetWriteDeadline(time.Time{})
	creds := Credentials{
		DeviceID:   hello.Device.ID,
		DeviceName: hello.Device.Name,
		URLLAN:     lan.URLLAN,
		Token:      lan.Token,
		PushToken:  lan.PushToken,
		Version:    ProtocolVersion,
	}
	return newDeviceSession(conn, creds, opts.KeepaliveInterval, h.logger), nil
}

// handshakeFailed decides between retrying and failing the handle. Only a
// wrong code returns to listening, until MaxAttempts is reached; protocol
// violations and dropped connections fail immediately.
func (h *Handle) handshakeFailed(conn *websocket.Conn, cause error) {
	wrongCode := errors.Is(cause, errWrongCode)
	reason := cause.Error()
	if wrongCode {
		reason = "invalid code"
	}
	deadline := time.Now().Add(writeWait)
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.WriteJSON(ErrorMessage{Type: TypeError, Reason: reason})
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, truncateReason(reason)), deadline)
	_ = conn.Close()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending = nil
	if h.state != StateHandshaking {
		return
	}
	h.attempts++
	if wrongCode && h.attempts < h.channel.opts.MaxAttempts {
		h.state = StateListening
		h.logger.Info("wrong pairing code; still listening",
			logging.Int("attempt", h.attempts),
		)
		return
	}

	h.finishLocked(pairResult{err: newError(kindOf(cause), StateHandshaking, cause)})
	h.logger.Warn("pairing failed",
		logging.Int("attempt", h.attempts),
		logging.Error(cause),
		logging.String(logging.FieldEventType, "pairing_failed"),
		logging.String(logging.FieldErrorHint, "check the code entered in the app and retry"),
	)
}

func (h *Handle) backToListening() {
	h.mu.Lock()
	if h.state == StateHandshaking {
		h.state = StateListening
	}
	h.mu.Unlock()
}

// close reasons must fit in a control frame.
func truncateReason(reason string) string {
	const max = 120
	if len(reason) > max {
		return reason[:max]
	}
	return reason
}
