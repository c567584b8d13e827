// Package notifications pushes episode lifecycle events to an ntfy topic.
// With no topic configured, notifications become no-ops.
package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"podscribe/internal/config"
	"podscribe/internal/services"
)

// Service delivers user-facing notifications for pipeline events.
type Service interface {
	NotifyEpisodeStarted(ctx context.Context, title string) error
	NotifyEpisodeCompleted(ctx context.Context, title string, numSpeakers int) error
	NotifyEpisodeFailed(ctx context.Context, title string, cause error) error
	TestNotification(ctx context.Context) error
}

// NewService returns an ntfy-backed service when a topic is configured,
// otherwise a no-op.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	return &ntfyService{
		topic: topic,
		client: &http.Client{
			Timeout: time.Duration(cfg.Notifications.RequestTimeout) * time.Second,
		},
	}
}

type ntfyService struct {
	topic  string
	client *http.Client
}

func (s *ntfyService) NotifyEpisodeStarted(ctx context.Context, title string) error {
	return s.send(ctx, message{
		title:    "Episode processing started",
		body:     title,
		tags:     "arrow_forward",
		priority: "default",
	})
}

func (s *ntfyService) NotifyEpisodeCompleted(ctx context.Context, title string, numSpeakers int) error {
	body := title
	if numSpeakers > 0 {
		body = fmt.Sprintf("%s (%d speakers)", title, numSpeakers)
	}
	return s.send(ctx, message{
		title:    "Episode ready",
		body:     body,
		tags:     "white_check_mark",
		priority: "default",
	})
}

func (s *ntfyService) NotifyEpisodeFailed(ctx context.Context, title string, cause error) error {
	body := title
	if cause != nil {
		body = fmt.Sprintf("%s: %v", title, cause)
	}
	return s.send(ctx, message{
		title:    "Episode processing failed",
		body:     body,
		tags:     "x",
		priority: "high",
	})
}

func (s *ntfyService) TestNotification(ctx context.Context) error {
	return s.send(ctx, message{
		title:    "Test notification",
		body:     "Notifications are configured correctly.",
		tags:     "bell",
		priority: "default",
	})
}

type message struct {
	title    string
	body     string
	tags     string
	priority string
}

func (s *ntfyService) send(ctx context.Context, msg message) error {
	url := s.topic
	if !strings.Contains(url, "://") {
		url = "https://ntfy.sh/" + url
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(msg.body))
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "notify", "request", "build notification request", err)
	}
	req.Header.Set("Title", msg.title)
	req.Header.Set("Tags", msg.tags)
	req.Header.Set("Priority", msg.priority)
	req.Header.Set("User-Agent", "podscribe/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "notify", "send", "notification delivery failed", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return services.Wrap(services.ErrTransient, "notify", "send",
			fmt.Sprintf("ntfy returned %s", resp.Status), nil)
	}
	return nil
}

type noopService struct{}

func (noopService) NotifyEpisodeStarted(context.Context, string) error { return nil }

func (noopService) NotifyEpisodeCompleted(context.Context, string, int) error { return nil }

func (noopService) NotifyEpisodeFailed(context.Context, string, error) error { return nil }

func (noopService) TestNotification(context.Context) error {
	return services.Wrap(services.ErrConfiguration, "notify", "test", "no ntfy topic configured", nil)
}
