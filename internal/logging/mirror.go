package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// LogEvent is the structured form of one log record, as written to the run's
// event journal.
type LogEvent struct {
	Sequence      uint64            `json:"seq"`
	Timestamp     time.Time         `json:"ts"`
	Level         string            `json:"level"`
	Message       string            `json:"msg"`
	Component     string            `json:"component,omitempty"`
	Stage         string            `json:"stage,omitempty"`
	ItemID        int64             `json:"item_id,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
	Details       []DetailField     `json:"details,omitempty"`
}

// DetailField mirrors the console handler's info bullet lines.
type DetailField struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// LogEventSink receives every published log event.
type LogEventSink interface {
	Append(LogEvent)
}

// EventStream numbers log events and fans them out to registered sinks. The
// daemon wires the run journal here so every record lands in the events file.
type EventStream struct {
	mu    sync.Mutex
	seq   uint64
	sinks []LogEventSink
}

// NewEventStream constructs an empty stream. Sinks added later only see
// events published after registration.
func NewEventStream() *EventStream {
	return &EventStream{}
}

// AddSink registers a sink for all subsequent events.
func (s *EventStream) AddSink(sink LogEventSink) {
	if s == nil || sink == nil {
		return
	}
	s.mu.Lock()
	s.sinks = append(s.sinks, sink)
	s.mu.Unlock()
}

// Publish stamps the event with the next sequence number and delivers it to
// every sink. Delivery happens outside the stream lock.
func (s *EventStream) Publish(evt LogEvent) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.seq++
	evt.Sequence = s.seq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	sinks := append([]LogEventSink(nil), s.sinks...)
	s.mu.Unlock()

	for _, sink := range sinks {
		sink.Append(evt)
	}
}

// mirrorHandler copies every record it handles into an EventStream before
// delegating to the wrapped handler.
type mirrorHandler struct {
	next   slog.Handler
	stream *EventStream
	bound  []slog.Attr
}

func newMirrorHandler(next slog.Handler, stream *EventStream) slog.Handler {
	if stream == nil || next == nil {
		return next
	}
	return &mirrorHandler{next: next, stream: stream}
}

func (h *mirrorHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *mirrorHandler) Handle(ctx context.Context, record slog.Record) error {
	h.stream.Publish(newLogEvent(record, h.bound))
	return h.next.Handle(ctx, record.Clone())
}

func (h *mirrorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := make([]slog.Attr, 0, len(h.bound)+len(attrs))
	bound = append(bound, h.bound...)
	bound = append(bound, attrs...)
	return &mirrorHandler{next: h.next.WithAttrs(attrs), stream: h.stream, bound: bound}
}

func (h *mirrorHandler) WithGroup(name string) slog.Handler {
	return &mirrorHandler{next: h.next.WithGroup(name), stream: h.stream, bound: h.bound}
}

// newLogEvent distills a record into a LogEvent. Bound attrs are absorbed
// first so call-site attrs override them.
func newLogEvent(record slog.Record, bound []slog.Attr) LogEvent {
	event := LogEvent{
		Timestamp: record.Time,
		Level:     strings.ToUpper(record.Level.String()),
		Message:   strings.TrimSpace(record.Message),
	}

	for _, attr := range bound {
		event.absorb(attr)
	}

	var attrs []kv
	record.Attrs(func(attr slog.Attr) bool {
		event.absorb(attr)
		if key := strings.TrimSpace(attr.Key); key != "" {
			attrs = append(attrs, kv{key: key, value: attr.Value})
		}
		return true
	})

	event.Details = detailFields(attrs)
	return event
}

// absorb routes one attribute into the event's promoted fields or, failing
// that, the free-form field map.
func (e *LogEvent) absorb(attr slog.Attr) {
	key := strings.TrimSpace(attr.Key)
	if key == "" {
		return
	}
	switch key {
	case FieldItemID:
		e.ItemID = attr.Value.Int64()
	case FieldStage:
		e.Stage = attrString(attr.Value)
	case FieldCorrelationID:
		e.CorrelationID = attrString(attr.Value)
	case FieldComponent:
		e.Component = attrString(attr.Value)
	default:
		if e.Fields == nil {
			e.Fields = make(map[string]string)
		}
		e.Fields[key] = attrString(attr.Value)
	}
}

// detailFields reuses the console handler's highlight selection so journal
// consumers see the same bullets an operator saw on screen.
func detailFields(attrs []kv) []DetailField {
	if len(attrs) == 0 {
		return nil
	}
	info, _ := selectInfoFields(attrs, infoAttrLimit, false)
	if len(info) == 0 {
		return nil
	}
	details := make([]DetailField, 0, len(info))
	for _, field := range info {
		details = append(details, DetailField{Label: field.label, Value: field.value})
	}
	return details
}
