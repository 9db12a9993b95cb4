package logging

import (
	"context"
	"log/slog"
	"sync"
	"testing"
)

// captureSink records published events for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []LogEvent
}

func (c *captureSink) Append(evt LogEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *captureSink) snapshot() []LogEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]LogEvent(nil), c.events...)
}

func newMirrorLogger(t *testing.T) (*slog.Logger, *captureSink) {
	t.Helper()
	stream := NewEventStream()
	sink := &captureSink{}
	stream.AddSink(sink)
	base := slog.NewTextHandler(discardWriter{}, nil)
	return slog.New(newMirrorHandler(base, stream)), sink
}

func TestMirrorHandlerBoundAttrs(t *testing.T) {
	logger, sink := newMirrorLogger(t)

	logger.With(slog.Int64("item_id", 42)).Info("test message", slog.String("extra", "value"))

	events := sink.snapshot()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].ItemID != 42 {
		t.Errorf("item_id = %d, want 42", events[0].ItemID)
	}
	if events[0].Message != "test message" {
		t.Errorf("message = %q", events[0].Message)
	}
	if events[0].Fields["extra"] != "value" {
		t.Errorf("expected extra field, got %v", events[0].Fields)
	}
}

func TestMirrorHandlerNestedBoundAttrs(t *testing.T) {
	logger, sink := newMirrorLogger(t)

	logger.
		With(slog.String("component", "encoder")).
		With(slog.Int64("item_id", 99)).
		With(slog.String("stage", "encoder")).
		Info("encoding progress")

	events := sink.snapshot()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	evt := events[0]
	if evt.ItemID != 99 {
		t.Errorf("item_id = %d, want 99", evt.ItemID)
	}
	if evt.Component != "encoder" {
		t.Errorf("component = %q, want encoder", evt.Component)
	}
	if evt.Stage != "encoder" {
		t.Errorf("stage = %q, want encoder", evt.Stage)
	}
}

func TestMirrorHandlerCallSiteOverridesBound(t *testing.T) {
	logger, sink := newMirrorLogger(t)

	logger.With(slog.String("stage", "original")).Info("message", slog.String("stage", "overridden"))

	events := sink.snapshot()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Stage != "overridden" {
		t.Errorf("stage = %q, want overridden", events[0].Stage)
	}
}

func TestMirrorHandlerNilStream(t *testing.T) {
	base := slog.NewTextHandler(discardWriter{}, nil)
	if handler := newMirrorHandler(base, nil); handler != base {
		t.Error("expected base handler when stream is nil")
	}
}

func TestMirrorHandlerEnabledDelegates(t *testing.T) {
	stream := NewEventStream()
	base := slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	handler := newMirrorHandler(base, stream)

	if handler.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected INFO to be disabled when base level is WARN")
	}
	if !handler.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("expected WARN to be enabled when base level is WARN")
	}
}

func TestEventStreamSequencesAndFansOut(t *testing.T) {
	stream := NewEventStream()
	first := &captureSink{}
	second := &captureSink{}
	stream.AddSink(first)
	stream.AddSink(second)

	for i := 0; i < 3; i++ {
		stream.Publish(LogEvent{Message: "event"})
	}

	for _, sink := range []*captureSink{first, second} {
		events := sink.snapshot()
		if len(events) != 3 {
			t.Fatalf("expected 3 events, got %d", len(events))
		}
		for i, evt := range events {
			if evt.Sequence != uint64(i+1) {
				t.Fatalf("event %d sequence = %d", i, evt.Sequence)
			}
			if evt.Timestamp.IsZero() {
				t.Fatalf("event %d missing timestamp", i)
			}
		}
	}
}

func TestEventDetailsFromHighlightFields(t *testing.T) {
	logger, sink := newMirrorLogger(t)

	logger.Info("search finished",
		slog.Int("crf", 22),
		slog.Float64("predicted_score", 95.4),
	)

	events := sink.snapshot()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	var sawCRF bool
	for _, detail := range events[0].Details {
		if detail.Label == "CRF" && detail.Value == "22" {
			sawCRF = true
		}
	}
	if !sawCRF {
		t.Fatalf("expected CRF detail, got %+v", events[0].Details)
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
