package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tunedrop/internal/config"
)

const userAgent = "tunedrop/0.1.0"

// RunSummary is the per-status tally of one send run.
type RunSummary struct {
	DeviceName          string
	Accepted            int
	Failed              int
	Skipped             int
	Unsupported         int
	UploadedNotRecorded int
	Duration            time.Duration
	// DeviceNotSaved is set when the paired device could not be stored.
	DeviceNotSaved bool
}

// Total counts every file in the run.
func (s RunSummary) Total() int {
	return s.Accepted + s.Failed + s.Skipped + s.Unsupported + s.UploadedNotRecorded
}

// Service defines the notification surface exposed to the orchestrator.
type Service interface {
	NotifyPaired(ctx context.Context, deviceName string, resumed bool) error
	NotifyRunCompleted(ctx context.Context, summary RunSummary) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyPaired(ctx context.Context, deviceName string, resumed bool) error {
	deviceName = strings.TrimSpace(deviceName)
	if deviceName == "" {
		deviceName = "unknown device"
	}
	verb := "Paired with"
	if resumed {
		verb = "Reconnected to"
	}
	return n.send(ctx, payload{
		title:   "tunedrop - Paired",
		message: fmt.Sprintf("📱 %s %s", verb, deviceName),
		tags:    []string{"tunedrop", "pairing"},
	})
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, summary RunSummary) error {
	duration := summary.Duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	target := strings.TrimSpace(summary.DeviceName)
	if target == "" {
		target = "device"
	}

	failed := summary.Failed + summary.UploadedNotRecorded
	data := payload{
		title:   "tunedrop - Transfer Complete",
		message: fmt.Sprintf("✅ Sent %d of %d files to %s in %s", summary.Accepted, summary.Total(), target, duration),
		tags:    []string{"tunedrop", "transfer", "completed"},
	}
	if failed > 0 || summary.Skipped > 0 || summary.DeviceNotSaved {
		data.title = "tunedrop - Transfer Complete (with errors)"
		data.message = fmt.Sprintf("Sent %d of %d files to %s in %s: %d failed, %d skipped, %d unsupported",
			summary.Accepted, summary.Total(), target, duration, failed, summary.Skipped, summary.Unsupported)
		if summary.DeviceNotSaved {
			data.message += "; device not saved"
		}
		data.tags = []string{"tunedrop", "transfer", "partial"}
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("❌ Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" during ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}
	return n.send(ctx, payload{
		title:    "tunedrop - Error",
		message:  builder.String(),
		tags:     []string{"tunedrop", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "tunedrop - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"tunedrop", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyPaired(context.Context, string, bool) error     { return nil }
func (noopService) NotifyRunCompleted(context.Context, RunSummary) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error     { return nil }
func (noopService) TestNotification(context.Context) error               { return nil }
