package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"datahandler/internal/config"
)

const userAgent = "datahandler/0.1"

// Event names a notification kind.
type Event string

const (
	EventJobCompleted Event = "job_completed"
	EventJobFailed    Event = "job_failed"
	EventCycleFailed  Event = "cycle_failed"
	EventTest         Event = "test"
)

// Payload carries the event's fields. Keys are event specific.
type Payload map[string]string

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed notifier, or a no-op one when no topic is
// configured.
func NewService(cfg config.Notifications) Service {
	topic := strings.TrimSpace(cfg.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
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

func format(event Event, payload Payload) (message, error) {
	job := strings.TrimSpace(payload["jobID"])
	label := job
	if site := strings.TrimSpace(payload["site"]); site != "" {
		label = fmt.Sprintf("%s (%s)", job, site)
	}
	switch event {
	case EventJobCompleted:
		body := fmt.Sprintf("Job %s complete", label)
		if v := strings.TrimSpace(payload["variable"]); v != "" {
			body = fmt.Sprintf("%s: %s", body, v)
		}
		return message{
			title: "Datahandler - Job Complete",
			body:  body,
			tags:  []string{"datahandler", "job", "completed"},
		}, nil
	case EventJobFailed:
		return message{
			title:    "Datahandler - Job Failed",
			body:     fmt.Sprintf("Job %s failed", label),
			tags:     []string{"datahandler", "job", "failed"},
			priority: "high",
		}, nil
	case EventCycleFailed:
		reason := strings.TrimSpace(payload["error"])
		if reason == "" {
			reason = "unknown"
		}
		return message{
			title:    "Datahandler - Scheduling Error",
			body:     fmt.Sprintf("Cycle %s failed: %s", strings.TrimSpace(payload["cycleID"]), reason),
			tags:     []string{"datahandler", "scheduler", "error"},
			priority: "high",
		}, nil
	case EventTest:
		return message{
			title:    "Datahandler - Test",
			body:     "Notification system test",
			tags:     []string{"datahandler", "test"},
			priority: "low",
		}, nil
	default:
		return message{}, fmt.Errorf("unknown notification event %q", event)
	}
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, err := format(event, payload)
	if err != nil {
		return err
	}
	return n.send(ctx, msg)
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

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
