package pairing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tunedrop/internal/logging"
)

// Resume reopens a session with a stored device without showing a code. Any
// rejection or an unreachable peer is reported as ErrStaleSession.
func (c *Channel) Resume(ctx context.Context, creds Credentials) (*DeviceSession, error) {
	if !creds.Resumable() || creds.DeviceID == "" {
		return nil, newError(ErrStaleSession, StateIdle, errors.New("device has no push token"))
	}
	target, err := creds.resumeURL()
	if err != nil {
		return nil, newError(ErrStaleSession, StateIdle, err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.HandshakeTimeout)
	defer cancel()
	conn, resp, err := c.dialer.DialContext(dialCtx, target, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, newError(ErrCancelled, StateHandshaking, ctx.Err())
		}
		return nil, newError(ErrStaleSession, StateHandshaking, fmt.Errorf("dial %s: %w", target, err))
	}

	fail := func(cause error) (*DeviceSession, error) {
		_ = conn.Close()
		return nil, newError(ErrStaleSession, StateHandshaking, cause)
	}

	deadline := time.Now().Add(c.opts.HandshakeTimeout)
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(deadline)
	_ = conn.SetWriteDeadline(deadline)

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := conn.WriteJSON(ResumeRequest{
		Type:      TypeResume,
		Version:   ProtocolVersion,
		DeviceID:  creds.DeviceID,
		PushToken: *creds.PushToken,
	}); err != nil {
		return fail(fmt.Errorf("write resume: %w", err))
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, newError(ErrCancelled, StateHandshaking, ctx.Err())
		}
		return fail(fmt.Errorf("read resume reply: %w", err))
	}
	lan, err := DecodeLANURL(data)
	if err != nil {
		return fail(err)
	}

	_ = conn.SetReadDeadline(time.Time{})
	_ = conn.SetWriteDeadline(time.Time{})
	refreshed := creds
	refreshed.URLLAN = lan.URLLAN
	refreshed.Token = lan.Token
	refreshed.Version = ProtocolVersion
	if lan.PushToken != nil {
		refreshed.PushToken = lan.PushToken
	}

	c.logger.Info("device session resumed",
		logging.String(logging.FieldDeviceID, refreshed.DeviceID),
		logging.String("device_name", refreshed.DeviceName),
	)
	return newDeviceSession(conn, refreshed, c.opts.KeepaliveInterval, c.logger), nil
}
