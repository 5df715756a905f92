package emulator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tunedrop/internal/logging"
	"tunedrop/internal/metrics"
	"tunedrop/internal/pairing"
)

const handshakeTimeout = 10 * time.Second

// Pair joins the sender advertised by descriptor using the code it carries,
// the way the app does after scanning the QR code.
func (p *Peer) Pair(ctx context.Context, descriptor string) error {
	u, err := url.Parse(descriptor)
	if err != nil {
		return fmt.Errorf("parse descriptor: %w", err)
	}
	code := u.Query().Get("code")
	if code == "" {
		return errors.New("descriptor has no code")
	}
	return p.PairWithCode(ctx, descriptor, code)
}

// PairWithCode joins the sender at descriptor presenting code. On success the
// session socket stays open until the sender closes it or the Peer is closed.
func (p *Peer) PairWithCode(ctx context.Context, descriptor, code string) error {
	if p.baseURL == "" {
		return errors.New("peer is not started")
	}
	dialCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, descriptor, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		p.recorder.ObservePairing(metrics.MethodFresh, metrics.ResultError)
		return fmt.Errorf("dial %s: %w", descriptor, err)
	}

	fail := func(err error) error {
		_ = conn.Close()
		p.recorder.ObservePairing(metrics.MethodFresh, metrics.ResultError)
		return err
	}

	_ = conn.SetWriteDeadline(time.Now().Add(handshakeTimeout))
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	if err := conn.WriteJSON(pairing.Hello{
		Type:    pairing.TypeHello,
		Version: pairing.ProtocolVersion,
		Code:    code,
		Device:  pairing.DeviceIdentity{ID: p.opts.DeviceID, Name: p.opts.DeviceName},
	}); err != nil {
		return fail(fmt.Errorf("write hello: %w", err))
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		return fail(fmt.Errorf("read welcome: %w", err))
	}
	welcome, err := pairing.DecodeWelcome(data)
	if err != nil {
		return fail(err)
	}

	token, err := p.issueToken()
	if err != nil {
		return fail(err)
	}
	reply := pairing.LANURL{Type: pairing.TypeLANURL, URLLAN: p.baseURL, Token: token}
	if p.opts.RequestSave {
		push := p.push
		reply.PushToken = &push
	}
	if err := conn.WriteJSON(reply); err != nil {
		return fail(fmt.Errorf("write lan_url: %w", err))
	}

	_ = conn.SetReadDeadline(time.Time{})
	_ = conn.SetWriteDeadline(time.Time{})

	p.mu.Lock()
	p.pairings++
	p.lastWelcome = welcome
	p.mu.Unlock()
	p.recorder.ObservePairing(metrics.MethodFresh, metrics.ResultSuccess)
	p.logger.Info("paired with sender",
		logging.String("sender", welcome.Sender),
		logging.Bool("is_saved", welcome.IsSaved),
	)

	go p.hold(conn)
	return nil
}

// handleResume answers a saved sender's resume request with a fresh token.
func (p *Peer) handleResume(c *gin.Context) {
	conn, err := peerUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		p.logger.Debug("resume upgrade failed", logging.Error(err))
		return
	}

	p.mu.Lock()
	p.resumeTries++
	p.mu.Unlock()

	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return
	}

	refuse := func(reason string) {
		p.recorder.ObservePairing(metrics.MethodResume, metrics.ResultStale)
		p.logger.Info("resume refused", logging.String("reason", reason))
		_ = conn.WriteJSON(pairing.ErrorMessage{Type: pairing.TypeError, Reason: reason})
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}

	req, err := pairing.DecodeResume(data)
	if err != nil {
		refuse(err.Error())
		return
	}

	p.mu.Lock()
	rejected := p.rejectResume
	p.mu.Unlock()
	switch {
	case rejected:
		refuse("session expired")
		return
	case req.DeviceID != p.opts.DeviceID:
		refuse("unknown device")
		return
	case req.PushToken != p.push:
		refuse("push token mismatch")
		return
	}

	token, err := p.issueToken()
	if err != nil {
		refuse("internal error")
		return
	}
	_ = conn.SetReadDeadline(time.Time{})
	if err := conn.WriteJSON(pairing.LANURL{Type: pairing.TypeLANURL, URLLAN: p.baseURL, Token: token}); err != nil {
		_ = conn.Close()
		return
	}

	p.mu.Lock()
	p.resumes++
	p.mu.Unlock()
	p.recorder.ObservePairing(metrics.MethodResume, metrics.ResultSuccess)
	p.logger.Info("session resumed", logging.String(logging.FieldDeviceID, req.DeviceID))
	p.hold(conn)
}

// PushToken returns the token shared when RequestSave is set.
func (p *Peer) PushToken() pairing.PushToken { return p.push }
