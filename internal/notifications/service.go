package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scriptlab/internal/config"
)

const userAgent = "scriptlab/0.1"

// Event identifies a workflow milestone.
type Event string

const (
	EventPlanReady       Event = "plan_ready"
	EventPlanFailed      Event = "plan_failed"
	EventAssetsGenerated Event = "assets_generated"
	EventTest            Event = "test"
)

// Payload carries event details keyed by name.
type Payload map[string]any

// Service publishes workflow events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
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

	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	title := payload.text("title")
	if title == "" {
		title = "untitled workflow"
	}
	switch event {
	case EventPlanReady:
		body := fmt.Sprintf("📝 Plan ready: %s", title)
		if scenes := payload.number("scenes"); scenes > 0 {
			body = fmt.Sprintf("%s (%d scenes, %d assets)", body, scenes, payload.number("assets"))
		}
		return message{
			title: "Scriptlab - Plan Ready",
			body:  body,
			tags:  []string{"scriptlab", "plan", "ready"},
		}, true
	case EventPlanFailed:
		reason := payload.text("error")
		if reason == "" {
			reason = "unknown error"
		}
		return message{
			title:    "Scriptlab - Plan Failed",
			body:     fmt.Sprintf("❌ Plan failed for %s: %s", title, reason),
			tags:     []string{"scriptlab", "plan", "error"},
			priority: "high",
		}, true
	case EventAssetsGenerated:
		generated := payload.number("generated")
		failed := payload.number("failed")
		if generated == 0 && failed == 0 {
			return message{}, false
		}
		msg := message{
			title: "Scriptlab - Assets Ready",
			body:  fmt.Sprintf("🎨 %s: %d assets generated", title, generated),
			tags:  []string{"scriptlab", "assets", "completed"},
		}
		if failed > 0 {
			msg.title = "Scriptlab - Assets Ready (with errors)"
			msg.body = fmt.Sprintf("🎨 %s: %d generated, %d failed", title, generated, failed)
		}
		return msg, true
	case EventTest:
		return message{
			title:    "Scriptlab - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"scriptlab", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
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

func (p Payload) text(key string) string {
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case error:
		return strings.TrimSpace(v.Error())
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (p Payload) number(key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
