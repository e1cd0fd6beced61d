package notifications

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"fovwatch/internal/config"
)

type recordedRequest struct {
	method   string
	title    string
	tags     string
	priority string
	body     string
}

func newTestService(t *testing.T, status int) (Service, *[]recordedRequest) {
	t.Helper()

	var requests []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests = append(requests, recordedRequest{
			method:   r.Method,
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	return NewService(&cfg), &requests
}

func TestNotifyRunStarted(t *testing.T) {
	service, requests := newTestService(t, http.StatusOK)

	if err := service.NotifyRunStarted(context.Background(), "run1", 12); err != nil {
		t.Fatalf("NotifyRunStarted: %v", err)
	}
	if len(*requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(*requests))
	}
	req := (*requests)[0]
	if req.method != http.MethodPost {
		t.Fatalf("method = %s, want POST", req.method)
	}
	if req.title != "fovwatch - Run Started" {
		t.Fatalf("title = %q", req.title)
	}
	if !strings.Contains(req.body, "run1") || !strings.Contains(req.body, "12") {
		t.Fatalf("body = %q", req.body)
	}
}

func TestNotifyFOVTimeoutPriority(t *testing.T) {
	service, requests := newTestService(t, http.StatusOK)

	if err := service.NotifyFOVTimeout(context.Background(), "run1", "fov-3-scan-1"); err != nil {
		t.Fatalf("NotifyFOVTimeout: %v", err)
	}
	req := (*requests)[0]
	if req.priority != "high" {
		t.Fatalf("priority = %q, want high", req.priority)
	}
	if !strings.Contains(req.body, "fov-3-scan-1") {
		t.Fatalf("body = %q", req.body)
	}
}

func TestNotifyRunCompletedMessage(t *testing.T) {
	service, requests := newTestService(t, http.StatusOK)
	ctx := context.Background()

	if err := service.NotifyRunCompleted(ctx, "run1", 10, 0); err != nil {
		t.Fatalf("NotifyRunCompleted: %v", err)
	}
	if err := service.NotifyRunCompleted(ctx, "run1", 9, 1); err != nil {
		t.Fatalf("NotifyRunCompleted: %v", err)
	}
	if strings.Contains((*requests)[0].body, "timed out") {
		t.Fatalf("clean run mentions timeouts: %q", (*requests)[0].body)
	}
	if !strings.Contains((*requests)[1].body, "1 timed out") {
		t.Fatalf("timeout run body = %q", (*requests)[1].body)
	}
}

func TestNotifyErrorIncludesDetail(t *testing.T) {
	service, requests := newTestService(t, http.StatusOK)

	err := service.NotifyError(context.Background(), errors.New("boom"), "per-fov callback: fov-1-scan-1")
	if err != nil {
		t.Fatalf("NotifyError: %v", err)
	}
	body := (*requests)[0].body
	if !strings.Contains(body, "boom") || !strings.Contains(body, "fov-1-scan-1") {
		t.Fatalf("body = %q", body)
	}
}

func TestSendRejectedStatus(t *testing.T) {
	service, _ := newTestService(t, http.StatusForbidden)
	if err := service.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error for rejected notification")
	}
}

func TestNewServiceWithoutTopicIsNoop(t *testing.T) {
	cfg := config.Default()
	service := NewService(&cfg)
	if _, ok := service.(noopService); !ok {
		t.Fatalf("service = %T, want noopService", service)
	}
	if err := service.NotifyRunStarted(context.Background(), "run1", 1); err != nil {
		t.Fatalf("noop notify: %v", err)
	}
}
