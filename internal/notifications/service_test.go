package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tailor/internal/config"
	"tailor/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventJobCompleted, notifications.Payload{"jobID": "j1"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := notifications.NewService(nil).Publish(context.Background(), notifications.EventTest, nil); err != nil {
		t.Fatalf("expected nil config to yield noop notifier, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:           "job completed",
			event:          notifications.EventJobCompleted,
			payload:        notifications.Payload{"jobID": "j1", "label": "Jane Doe / Acme"},
			expectTitle:    "Tailor - Job Complete",
			expectMessage:  "All stages complete: Jane Doe / Acme (j1)",
			expectTags:     "tailor,job,completed",
			expectPriority: "high",
		},
		{
			name:           "stage failed",
			event:          notifications.EventStageFailed,
			payload:        notifications.Payload{"jobID": "j2", "stage": "enhance", "reason": "output is empty"},
			expectTitle:    "Tailor - Stage Failed",
			expectMessage:  "Stage enhance failed: j2\noutput is empty",
			expectTags:     "tailor,stage,failed",
			expectPriority: "high",
		},
		{
			name:          "stage stalled",
			event:         notifications.EventStageStalled,
			payload:       notifications.Payload{"jobID": "j3", "stage": "cover-letter", "waiting": 90*time.Minute + 400*time.Millisecond},
			expectTitle:   "Tailor - Stage Stalled",
			expectMessage: "Stage cover-letter has waited 1h30m0s for agent output: j3",
			expectTags:    "tailor,stage,stalled",
		},
		{
			name:           "error",
			event:          notifications.EventError,
			payload:        notifications.Payload{"context": "poll", "error": "database is locked"},
			expectTitle:    "Tailor - Error",
			expectMessage:  "Error with poll: database is locked",
			expectTags:     "tailor,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Errorf("read body: %v", err)
				}
				captured.body = string(body)
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceIgnoresUnknownEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for unknown event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.Event("stage_started"), notifications.Payload{"jobID": "j1"}); err != nil {
		t.Fatalf("expected no error for unknown event, got %v", err)
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic is read-only", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	err := notifications.NewService(&cfg).Publish(context.Background(), notifications.EventTest, nil)
	if err == nil || !strings.Contains(err.Error(), "ntfy returned 403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}
