package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"squeeze/internal/config"
	"squeeze/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventEncodingCompleted, notifications.Payload{"name": "Example"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
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
			name:  "encoding completed",
			event: notifications.EventEncodingCompleted,
			payload: notifications.Payload{
				"name":      "Interstellar",
				"savings":   62.0,
				"finalFile": "/library/Interstellar.mkv",
			},
			expectTitle:   "Squeeze - Encoded",
			expectMessage: "🎞️ Encoding complete: Interstellar (saved 62%)\nFile: /library/Interstellar.mkv",
			expectTags:    "squeeze,encode,completed",
		},
		{
			name:  "quality search completed",
			event: notifications.EventQualitySearchCompleted,
			payload: notifications.Payload{
				"name":    "Arrival",
				"crf":     24.0,
				"savings": 71.0,
			},
			expectTitle:   "Squeeze - Quality Search",
			expectMessage: "Quality search complete: Arrival (crf 24, predicted savings 71%)",
			expectTags:    "squeeze,search,completed",
		},
		{
			name:  "item failed",
			event: notifications.EventItemFailed,
			payload: notifications.Payload{
				"name":  "Blade Runner",
				"stage": "encoding",
				"error": "encode failed",
			},
			expectTitle:    "Squeeze - Error",
			expectMessage:  "❌ Blade Runner failed during encoding: encode failed",
			expectTags:     "squeeze,error,alert",
			expectPriority: "high",
		},
		{
			name:  "worker reset",
			event: notifications.EventWorkerReset,
			payload: notifications.Payload{
				"stage":  "quality_search",
				"probes": 900,
			},
			expectTitle:    "Squeeze - Worker Reset",
			expectMessage:  "Reset unresponsive quality_search worker after 900 failed probes",
			expectTags:     "squeeze,worker,reset",
			expectPriority: "high",
		},
		{
			name:  "queue added",
			event: notifications.EventQueueAdded,
			payload: notifications.Payload{
				"count": 3,
				"first": "movie.mkv",
			},
			expectTitle:   "Squeeze - Queue",
			expectMessage: "Added 3 files to the queue\nFirst: movie.mkv",
			expectTags:    "squeeze,queue,added",
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
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
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

func TestNtfyServiceSuppressesDisabledEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for suppressed event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Encoding = false
	cfg.Notifications.Errors = false
	cfg.Notifications.QualitySearch = false

	svc := notifications.NewService(&cfg)
	events := []notifications.Event{
		notifications.EventEncodingCompleted,
		notifications.EventQualitySearchCompleted,
		notifications.EventItemFailed,
		notifications.EventWorkerReset,
	}
	for _, event := range events {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"name": "ignored"}); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
}

func TestNtfyServiceSuppressesSmallQueueBatches(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for small batch: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.QueueMinItems = 2

	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventQueueAdded, notifications.Payload{"count": 1}); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
}

func TestNtfyServiceDeduplicatesWithinWindow(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.DedupWindowSeconds = 600

	svc := notifications.NewService(&cfg)
	payload := notifications.Payload{"name": "Dune", "stage": "encoding", "error": "encode failed"}
	for i := 0; i < 3; i++ {
		if err := svc.Publish(context.Background(), notifications.EventItemFailed, payload); err != nil {
			t.Fatalf("Publish returned error: %v", err)
		}
	}

	if got := calls.Load(); got != 1 {
		t.Fatalf("delivered %d notifications, want 1", got)
	}
}

func TestNtfyServiceRateLimits(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.DedupWindowSeconds = 0
	cfg.Notifications.RatePerMinute = 1

	svc := notifications.NewService(&cfg)
	for i := 0; i < 3; i++ {
		if err := svc.Publish(context.Background(), notifications.EventWorkerReset, notifications.Payload{"stage": "encoding", "probes": i}); err != nil {
			t.Fatalf("Publish returned error: %v", err)
		}
	}

	if got := calls.Load(); got != 1 {
		t.Fatalf("delivered %d notifications, want 1", got)
	}
}
