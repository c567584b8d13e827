package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"podscribe/internal/notifications"
	"podscribe/internal/services"
	"podscribe/internal/testsupport"
)

type capture struct {
	mu       sync.Mutex
	title    string
	tags     string
	priority string
	body     string
}

func newCaptureServer(t *testing.T, c *capture) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.title = r.Header.Get("Title")
		c.tags = r.Header.Get("Tags")
		c.priority = r.Header.Get("Priority")
		c.body = string(body)
		c.mu.Unlock()
	}))
}

func TestNotifyEpisodeCompleted(t *testing.T) {
	var got capture
	srv := newCaptureServer(t, &got)
	defer srv.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = srv.URL
	svc := notifications.NewService(cfg)

	if err := svc.NotifyEpisodeCompleted(context.Background(), "Deep Dive", 2); err != nil {
		t.Fatalf("NotifyEpisodeCompleted: %v", err)
	}
	if got.title != "Episode ready" {
		t.Fatalf("title = %q", got.title)
	}
	if got.body != "Deep Dive (2 speakers)" {
		t.Fatalf("body = %q", got.body)
	}
	if got.priority != "default" {
		t.Fatalf("priority = %q", got.priority)
	}
}

func TestNotifyEpisodeFailedUsesHighPriority(t *testing.T) {
	var got capture
	srv := newCaptureServer(t, &got)
	defer srv.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = srv.URL
	svc := notifications.NewService(cfg)

	if err := svc.NotifyEpisodeFailed(context.Background(), "Deep Dive", errors.New("download failed")); err != nil {
		t.Fatalf("NotifyEpisodeFailed: %v", err)
	}
	if got.priority != "high" {
		t.Fatalf("priority = %q, want high", got.priority)
	}
	if got.body != "Deep Dive: download failed" {
		t.Fatalf("body = %q", got.body)
	}
}

func TestServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = srv.URL
	svc := notifications.NewService(cfg)

	err := svc.TestNotification(context.Background())
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestNoTopicMeansNoop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	svc := notifications.NewService(cfg)

	if err := svc.NotifyEpisodeStarted(context.Background(), "x"); err != nil {
		t.Fatalf("noop NotifyEpisodeStarted: %v", err)
	}
	if err := svc.TestNotification(context.Background()); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("TestNotification without topic should report configuration error, got %v", err)
	}
}
