package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dockd/internal/config"
)

const userAgent = "dockd/0.1.0"

// Service defines the notification surface exposed to the dock pipeline.
type Service interface {
	NotifyDeviceDetected(ctx context.Context, device string) error
	NotifyFirmwareFlashed(ctx context.Context, image string) error
	NotifySessionCompleted(ctx context.Context, sessionKey string, files, records int) error
	NotifySessionAborted(ctx context.Context, sessionKey, reason string) error
	NotifyError(ctx context.Context, err error, stage string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
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
		sessions: cfg.Notifications.Sessions,
		firmware: cfg.Notifications.Firmware,
		errors:   cfg.Notifications.Errors,
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
	sessions bool
	firmware bool
	errors   bool
}

func (n *ntfyService) NotifyDeviceDetected(ctx context.Context, device string) error {
	if !n.sessions {
		return nil
	}
	device = strings.TrimSpace(device)
	if device == "" {
		device = "unknown"
	}
	data := payload{
		title:   "Dock - Device Detected",
		message: fmt.Sprintf("Wearable docked: %s", device),
		tags:    []string{"dockd", "device", "detected"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyFirmwareFlashed(ctx context.Context, image string) error {
	if !n.firmware {
		return nil
	}
	data := payload{
		title:   "Dock - Firmware Updated",
		message: fmt.Sprintf("Firmware flashed: %s", strings.TrimSpace(image)),
		tags:    []string{"dockd", "firmware", "flashed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySessionCompleted(ctx context.Context, sessionKey string, files, records int) error {
	if !n.sessions {
		return nil
	}
	data := payload{
		title: "Dock - Session Complete",
		message: fmt.Sprintf("Session %s archived: %d file(s), %d record(s) published",
			strings.TrimSpace(sessionKey), files, records),
		tags:     []string{"dockd", "session", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySessionAborted(ctx context.Context, sessionKey, reason string) error {
	if !n.sessions {
		return nil
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	data := payload{
		title:    "Dock - Session Aborted",
		message:  fmt.Sprintf("Session %s aborted: %s", strings.TrimSpace(sessionKey), reason),
		tags:     []string{"dockd", "session", "aborted"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" in ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Dock - Error",
		message:  builder.String(),
		tags:     []string{"dockd", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Dock - Test",
		message:  "Notification system test",
		tags:     []string{"dockd", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
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

func (noopService) NotifyDeviceDetected(context.Context, string) error { return nil }
func (noopService) NotifyFirmwareFlashed(context.Context, string) error { return nil }
func (noopService) NotifySessionCompleted(context.Context, string, int, int) error { return nil }
func (noopService) NotifySessionAborted(context.Context, string, string) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error { return nil }
func (noopService) TestNotification(context.Context) error { return nil }
