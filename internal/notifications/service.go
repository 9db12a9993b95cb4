package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"squeeze/internal/config"
)

const userAgent = "Squeeze-Go/0.1.0"

// Event identifies one notification category.
type Event string

const (
	EventQueueAdded             Event = "queue_added"
	EventQualitySearchCompleted Event = "quality_search_completed"
	EventEncodingCompleted      Event = "encoding_completed"
	EventItemFailed             Event = "item_failed"
	EventWorkerReset            Event = "worker_reset"
	EventDaemonStarted          Event = "daemon_started"
	EventDaemonStopped          Event = "daemon_stopped"
	EventTest                   Event = "test"
)

// Payload carries the fields an event's message is rendered from.
type Payload map[string]any

// Service is the notification surface exposed to pipeline components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
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

	var limiter *rate.Limiter
	if perMinute := cfg.Notifications.RatePerMinute; perMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		cfg:      cfg.Notifications,
		limiter:  limiter,
		lastSent: make(map[string]time.Time),
		now:      time.Now,
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
	cfg      config.Notifications
	limiter  *rate.Limiter

	mu       sync.Mutex
	lastSent map[string]time.Time
	now      func() time.Time
}

// Publish renders and delivers one event. Suppressed, duplicate, and
// rate-limited events are dropped without error; notifications are best
// effort and never fail the pipeline.
func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.compose(event, payload)
	if !ok {
		return nil
	}
	if n.isDuplicate(event, msg.body) {
		return nil
	}
	if n.limiter != nil && !n.limiter.Allow() {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) compose(event Event, payload Payload) (message, bool) {
	switch event {
	case EventQueueAdded:
		if !n.cfg.QueueAdds {
			return message{}, false
		}
		count := payloadInt(payload, "count")
		if count < n.cfg.QueueMinItems {
			return message{}, false
		}
		body := fmt.Sprintf("Added %d files to the queue", count)
		if first := payloadString(payload, "first"); first != "" {
			body = fmt.Sprintf("%s\nFirst: %s", body, first)
		}
		return message{
			title: "Squeeze - Queue",
			body:  body,
			tags:  []string{"squeeze", "queue", "added"},
		}, true

	case EventQualitySearchCompleted:
		if !n.cfg.QualitySearch {
			return message{}, false
		}
		return message{
			title: "Squeeze - Quality Search",
			body: fmt.Sprintf("Quality search complete: %s (crf %g, predicted savings %.0f%%)",
				payloadString(payload, "name"),
				payloadFloat(payload, "crf"),
				payloadFloat(payload, "savings")),
			tags: []string{"squeeze", "search", "completed"},
		}, true

	case EventEncodingCompleted:
		if !n.cfg.Encoding {
			return message{}, false
		}
		body := fmt.Sprintf("🎞️ Encoding complete: %s", payloadString(payload, "name"))
		if savings, ok := payload["savings"]; ok {
			body = fmt.Sprintf("%s (saved %.0f%%)", body, toFloat(savings))
		}
		if finalFile := payloadString(payload, "finalFile"); finalFile != "" {
			body = fmt.Sprintf("%s\nFile: %s", body, finalFile)
		}
		return message{
			title: "Squeeze - Encoded",
			body:  body,
			tags:  []string{"squeeze", "encode", "completed"},
		}, true

	case EventItemFailed:
		if !n.cfg.Errors {
			return message{}, false
		}
		return message{
			title: "Squeeze - Error",
			body: fmt.Sprintf("❌ %s failed during %s: %s",
				payloadString(payload, "name"),
				payloadString(payload, "stage"),
				payloadString(payload, "error")),
			tags:     []string{"squeeze", "error", "alert"},
			priority: "high",
		}, true

	case EventWorkerReset:
		if !n.cfg.Errors {
			return message{}, false
		}
		return message{
			title: "Squeeze - Worker Reset",
			body: fmt.Sprintf("Reset unresponsive %s worker after %d failed probes",
				payloadString(payload, "stage"),
				payloadInt(payload, "probes")),
			tags:     []string{"squeeze", "worker", "reset"},
			priority: "high",
		}, true

	case EventDaemonStarted:
		body := "Daemon started"
		if version := payloadString(payload, "version"); version != "" {
			body = fmt.Sprintf("Daemon started (%s)", version)
		}
		return message{
			title:    "Squeeze - Started",
			body:     body,
			tags:     []string{"squeeze", "daemon"},
			priority: "low",
		}, true

	case EventDaemonStopped:
		return message{
			title:    "Squeeze - Stopped",
			body:     "Daemon stopped",
			tags:     []string{"squeeze", "daemon"},
			priority: "low",
		}, true

	case EventTest:
		return message{
			title:    "Squeeze - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"squeeze", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
}

// isDuplicate reports whether the same rendered message went out within the
// dedup window, and records this one if not.
func (n *ntfyService) isDuplicate(event Event, body string) bool {
	window := time.Duration(n.cfg.DedupWindowSeconds) * time.Second
	if window <= 0 {
		return false
	}
	key := string(event) + "\n" + body
	now := n.now()

	n.mu.Lock()
	defer n.mu.Unlock()
	if last, ok := n.lastSent[key]; ok && now.Sub(last) < window {
		return true
	}
	n.lastSent[key] = now
	for k, sent := range n.lastSent {
		if now.Sub(sent) >= window {
			delete(n.lastSent, k)
		}
	}
	return false
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

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

func payloadString(payload Payload, key string) string {
	if payload == nil {
		return ""
	}
	if value, ok := payload[key]; ok {
		return strings.TrimSpace(fmt.Sprint(value))
	}
	return ""
}

func payloadInt(payload Payload, key string) int {
	if payload == nil {
		return 0
	}
	switch value := payload[key].(type) {
	case int:
		return value
	case int64:
		return int(value)
	case float64:
		return int(value)
	}
	return 0
}

func payloadFloat(payload Payload, key string) float64 {
	if payload == nil {
		return 0
	}
	return toFloat(payload[key])
}

func toFloat(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
