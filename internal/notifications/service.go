package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fovwatch/internal/config"
)

const userAgent = "fovwatch/0.1.0"

// Service defines the notification surface exposed to the watcher.
type Service interface {
	NotifyRunStarted(ctx context.Context, runName string, totalFOVs int) error
	NotifyFOVTimeout(ctx context.Context, runName, fovID string) error
	NotifyRunCompleted(ctx context.Context, runName string, processed, timedOut int) error
	NotifyError(ctx context.Context, err error, detail string) error
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

func (n *ntfyService) NotifyRunStarted(ctx context.Context, runName string, totalFOVs int) error {
	data := payload{
		title:   "fovwatch - Run Started",
		message: fmt.Sprintf("Watching %s (%d FOVs expected)", runName, totalFOVs),
		tags:    []string{"fovwatch", "run", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyFOVTimeout(ctx context.Context, runName, fovID string) error {
	data := payload{
		title:    "fovwatch - FOV Timed Out",
		message:  fmt.Sprintf("%s: %s never reached non-zero size and was dropped", runName, fovID),
		tags:     []string{"fovwatch", "fov", "timeout"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, runName string, processed, timedOut int) error {
	var message string
	if timedOut == 0 {
		message = fmt.Sprintf("Run %s complete: %d FOVs processed", runName, processed)
	} else {
		message = fmt.Sprintf("Run %s complete: %d FOVs processed, %d timed out", runName, processed, timedOut)
	}
	data := payload{
		title:    "fovwatch - Run Complete",
		message:  message,
		tags:     []string{"fovwatch", "run", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, detail string) error {
	detail = strings.TrimSpace(detail)
	message := fmt.Sprintf("Error: %v", err)
	if detail != "" {
		message = fmt.Sprintf("%s\n%s", message, detail)
	}
	data := payload{
		title:    "fovwatch - Error",
		message:  message,
		tags:     []string{"fovwatch", "error"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:   "fovwatch - Test",
		message: "Test notification from fovwatch",
		tags:    []string{"fovwatch", "test"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification rejected: %s", resp.Status)
	}
	return nil
}

type noopService struct{}

func (noopService) NotifyRunStarted(context.Context, string, int) error { return nil }

func (noopService) NotifyFOVTimeout(context.Context, string, string) error { return nil }

func (noopService) NotifyRunCompleted(context.Context, string, int, int) error { return nil }

func (noopService) NotifyError(context.Context, error, string) error { return nil }

func (noopService) TestNotification(context.Context) error { return nil }
