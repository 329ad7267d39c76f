package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tailor/internal/config"
)

const userAgent = "tailor/0.1"

// Event names a notification type.
type Event string

const (
	EventJobCompleted Event = "job_completed"
	EventStageFailed  Event = "stage_failed"
	EventStageStalled Event = "stage_stalled"
	EventError        Event = "error"
	EventTest         Event = "test"
)

// Payload carries event fields. Known keys: jobID, stage, label, reason,
// waiting, context, error.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notifier backed by ntfy when a topic is configured and
// a no-op otherwise.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := cfg.Notifications.RequestTimeoutDuration()
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
	jobID := payload.text("jobID")
	subject := jobID
	if label := payload.text("label"); label != "" {
		subject = fmt.Sprintf("%s (%s)", label, jobID)
	}
	switch event {
	case EventJobCompleted:
		return message{
			title:    "Tailor - Job Complete",
			body:     fmt.Sprintf("All stages complete: %s", subject),
			tags:     []string{"tailor", "job", "completed"},
			priority: "high",
		}, true
	case EventStageFailed:
		body := fmt.Sprintf("Stage %s failed: %s", payload.text("stage"), subject)
		if reason := payload.text("reason"); reason != "" {
			body += "\n" + reason
		}
		return message{
			title:    "Tailor - Stage Failed",
			body:     body,
			tags:     []string{"tailor", "stage", "failed"},
			priority: "high",
		}, true
	case EventStageStalled:
		return message{
			title: "Tailor - Stage Stalled",
			body: fmt.Sprintf("Stage %s has waited %s for agent output: %s",
				payload.text("stage"), payload.text("waiting"), subject),
			tags: []string{"tailor", "stage", "stalled"},
		}, true
	case EventError:
		var b strings.Builder
		b.WriteString("Error")
		if label := payload.text("context"); label != "" {
			b.WriteString(" with ")
			b.WriteString(label)
		}
		b.WriteString(": ")
		if errText := payload.text("error"); errText != "" {
			b.WriteString(errText)
		} else {
			b.WriteString("unknown")
		}
		return message{
			title:    "Tailor - Error",
			body:     b.String(),
			tags:     []string{"tailor", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Tailor - Test",
			body:     "Notification system test",
			tags:     []string{"tailor", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (p Payload) text(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	case time.Duration:
		return v.Round(time.Second).String()
	default:
		return strings.TrimSpace(fmt.Sprint(v))
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
	if msg.priority != "" {
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
