package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"tunedrop/internal/devicestore"
	"tunedrop/internal/logging"
	"tunedrop/internal/metrics"
	"tunedrop/internal/pairing"
	"tunedrop/internal/services"
)

type connection struct {
	session *pairing.DeviceSession
	resumed bool
}

// connect resumes the selected device or pairs a new one. A stale resume
// falls back to exactly one fresh pairing.
func (o *Orchestrator) connect(ctx context.Context, req Request) (*connection, error) {
	logger := logging.WithContext(ctx, o.logger)
	channel, err := o.newChannel(ctx)
	if err != nil {
		return nil, err
	}

	if selector := strings.TrimSpace(req.Device); selector != "" {
		ctx = services.WithStage(ctx, "resume")
		device, err := o.store.FindDevice(ctx, selector)
		if err != nil {
			return nil, services.Wrap(services.ErrStore, "resume", "find device", "", err)
		}
		if device == nil {
			return nil, services.Wrap(services.ErrNotFound, "resume", "find device",
				fmt.Sprintf("no saved device matches %q", selector), nil)
		}

		session, err := o.resume(ctx, channel, device)
		if err == nil {
			return &connection{session: session, resumed: true}, nil
		}
		if !errors.Is(err, pairing.ErrStaleSession) {
			return nil, services.Wrap(services.ErrPairing, "resume", "reconnect", "", err)
		}
		logging.WarnWithContext(logger, "saved session is stale; pairing again", "resume_stale",
			logging.String(logging.FieldDeviceID, device.ID),
			logging.String(logging.FieldImpact, "a new pairing code must be entered on the device"),
			logging.Error(err),
		)
	}

	session, err := o.pair(services.WithStage(ctx, "pairing"), channel, req)
	if err != nil {
		return nil, err
	}
	return &connection{session: session}, nil
}

func (o *Orchestrator) newChannel(ctx context.Context) (*pairing.Channel, error) {
	devices, err := o.store.ListDevices(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrStore, "pairing", "list devices", "", err)
	}
	known := make(map[string]struct{}, len(devices))
	for _, d := range devices {
		known[d.ID] = struct{}{}
	}

	opts := pairing.OptionsFromConfig(o.cfg)
	opts.Logger = o.logger
	if host, err := os.Hostname(); err == nil && host != "" {
		opts.SenderName = "tunedrop@" + host
	}
	opts.Known = func(deviceID string) bool {
		_, ok := known[deviceID]
		return ok
	}
	return pairing.New(opts), nil
}

func (o *Orchestrator) resume(ctx context.Context, channel *pairing.Channel, device *devicestore.Device) (*pairing.DeviceSession, error) {
	creds, err := pairing.DecodeCredentials(device.Data)
	if err != nil {
		o.metrics.ObservePairing(metrics.MethodResume, metrics.ResultStale)
		return nil, &pairing.Error{Kind: pairing.ErrStaleSession, State: pairing.StateIdle, Err: err}
	}
	session, err := channel.Resume(ctx, creds)
	switch {
	case err == nil:
		o.metrics.ObservePairing(metrics.MethodResume, metrics.ResultSuccess)
		logging.WithContext(ctx, o.logger).Info("resumed saved device",
			logging.String(logging.FieldDeviceID, session.DeviceID()),
			logging.String("name", session.DeviceName()),
		)
	case errors.Is(err, pairing.ErrStaleSession):
		o.metrics.ObservePairing(metrics.MethodResume, metrics.ResultStale)
	default:
		o.metrics.ObservePairing(metrics.MethodResume, metrics.ResultError)
	}
	return session, err
}

func (o *Orchestrator) pair(ctx context.Context, channel *pairing.Channel, req Request) (*pairing.DeviceSession, error) {
	logger := logging.WithContext(ctx, o.logger)
	handle, err := channel.BeginPairing(ctx)
	if err != nil {
		o.metrics.ObservePairing(metrics.MethodFresh, metrics.ResultError)
		return nil, services.Wrap(services.ErrPairing, "pairing", "listen", "", err)
	}
	logger.Info("waiting for device",
		logging.String("descriptor", handle.Descriptor()),
		logging.String("listen", handle.Addr().String()),
	)
	o.presenter.PairingStarted(handle.Code(), handle.Descriptor())

	timeout := req.PairingTimeout
	if timeout <= 0 {
		timeout = o.cfg.PairingTimeout()
	}
	session, err := channel.AwaitPeer(ctx, handle, timeout)
	if err != nil {
		marker := services.ErrPairing
		result := metrics.ResultError
		if errors.Is(err, pairing.ErrTimeout) {
			marker = services.ErrTimeout
			result = metrics.ResultTimeout
		}
		o.metrics.ObservePairing(metrics.MethodFresh, result)
		return nil, services.Wrap(marker, "pairing", "await peer", "", err)
	}
	o.metrics.ObservePairing(metrics.MethodFresh, metrics.ResultSuccess)
	logger.Info("device paired",
		logging.String(logging.FieldDeviceID, session.DeviceID()),
		logging.String("name", session.DeviceName()),
		logging.Bool("save_requested", session.SaveRequested()),
	)
	return session, nil
}
