package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"squeeze/internal/services"
)

func TestNewConsoleOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")

	logger, err := New(Options{
		Format:           "console",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("quality search started", slog.Int("crf", 24))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(content)
	if !strings.Contains(text, "quality search started") {
		t.Fatalf("expected message in output, got %q", text)
	}
	if !strings.Contains(text, "- CRF: 24") {
		t.Fatalf("expected info bullet for crf, got %q", text)
	}
	if strings.Contains(text, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", text)
	}
}

func TestNewConsoleIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")

	logger, err := New(Options{
		Format:           "console",
		Level:            "debug",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestNewJSONRenamesCoreKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "daemon.log")

	logger, err := New(Options{
		Format:           "json",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("structured message", slog.String("k", "v"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(content)
	for _, want := range []string{`"ts":`, `"level":"info"`, `"msg":"structured message"`, `"k":"v"`} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %s in JSON output, got %q", want, text)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"fatal":   slog.LevelError,
		"":        slog.LevelInfo,
		"invalid": slog.LevelInfo,
	}
	for input, want := range cases {
		if got := parseLevel(input); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithItemID(ctx, 123)
	ctx = services.WithStage(ctx, "encoder")
	ctx = services.WithRequestID(ctx, "req-xyz")

	stream := NewEventStream()
	sink := &captureSink{}
	stream.AddSink(sink)
	logger := slog.New(newMirrorHandler(slog.NewTextHandler(discardWriter{}, nil), stream))

	WithContext(ctx, logger).Info("contextual log")

	events := sink.snapshot()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	evt := events[0]
	if evt.ItemID != 123 {
		t.Errorf("item_id = %d, want 123", evt.ItemID)
	}
	if evt.Stage != "encoder" {
		t.Errorf("stage = %q, want encoder", evt.Stage)
	}
	if evt.CorrelationID != "req-xyz" {
		t.Errorf("correlation_id = %q, want req-xyz", evt.CorrelationID)
	}
}

func TestConsoleFiltersRepeatedInfoBullets(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelInfo)
	logger := slog.New(newPrettyHandler(&buf, levelVar, false))

	logger.Info("search progress", slog.Int64(FieldItemID, 7), slog.Int("crf", 24))
	logger.Info("search progress", slog.Int64(FieldItemID, 7), slog.Int("crf", 24))

	if got := strings.Count(buf.String(), "CRF: 24"); got != 1 {
		t.Fatalf("expected unchanged bullet to be filtered on repeat, saw it %d times\n%s", got, buf.String())
	}
}

func TestConsoleSubjectIncludesItemAndStage(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelInfo)
	logger := slog.New(newPrettyHandler(&buf, levelVar, false))

	logger.Info("claimed", slog.Int64(FieldItemID, 42), slog.String(FieldStage, "encoder"))

	if !strings.Contains(buf.String(), "Item #42 (encoder)") {
		t.Fatalf("expected subject in header, got %q", buf.String())
	}
}

func TestTeeLoggerDuplicatesRecords(t *testing.T) {
	var first bytes.Buffer
	var second bytes.Buffer
	base := slog.New(slog.NewTextHandler(&first, nil))

	logger := TeeLogger(base, slog.NewTextHandler(&second, nil))
	logger.Info("copied everywhere")

	if !strings.Contains(first.String(), "copied everywhere") {
		t.Fatalf("primary handler missing record: %q", first.String())
	}
	if !strings.Contains(second.String(), "copied everywhere") {
		t.Fatalf("secondary handler missing record: %q", second.String())
	}
}

func TestWithLevelOverride(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	quiet := WithLevelOverride(logger, slog.LevelWarn)
	quiet.Info("suppressed")
	quiet.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "suppressed") {
		t.Fatalf("expected info record to be suppressed, got %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Fatalf("expected warn record to pass, got %q", out)
	}
}

func TestFormatBytes(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024 * 1024, "5.0 GiB"},
	}
	for _, tc := range cases {
		if got := FormatBytes(tc.in); got != tc.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatDurationHuman(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{45 * time.Second, "45s"},
		{90 * time.Second, "1m30s"},
		{2*time.Hour + 5*time.Minute, "2h05m00s"},
	}
	for _, tc := range cases {
		if got := FormatDurationHuman(tc.in); got != tc.want {
			t.Errorf("FormatDurationHuman(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
