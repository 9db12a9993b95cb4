package services_test

import (
	"errors"
	"strings"
	"testing"

	"squeeze/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "encoder", "encode", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"encoder", "encode", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker for nil input, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestCommandDetailRoundTrip(t *testing.T) {
	base := errors.New("exit status 1")
	cmdErr := services.NewCommandError("ab-av1 encode --crf 24", []byte("  Error: sample failed\n"), base)
	wrapped := services.Wrap(services.ErrExternalTool, "encoder", "encode", "tool exited", cmdErr)

	command, output, ok := services.CommandDetail(wrapped)
	if !ok {
		t.Fatalf("expected command detail in chain: %v", wrapped)
	}
	if command != "ab-av1 encode --crf 24" {
		t.Fatalf("unexpected command %q", command)
	}
	if output != "Error: sample failed" {
		t.Fatalf("unexpected output %q", output)
	}
	if !errors.Is(wrapped, base) {
		t.Fatalf("expected base error preserved, got %v", wrapped)
	}
}

func TestCommandDetailAbsent(t *testing.T) {
	if _, _, ok := services.CommandDetail(errors.New("plain")); ok {
		t.Fatal("expected no command detail")
	}
}

func TestCommandErrorBoundsOutput(t *testing.T) {
	big := strings.Repeat("x", 40*1024)
	cmdErr := services.NewCommandError("ffprobe", []byte(big), nil)
	if len(cmdErr.Output) > 16*1024 {
		t.Fatalf("expected bounded output, got %d bytes", len(cmdErr.Output))
	}
	if !strings.HasSuffix(big, cmdErr.Output) {
		t.Fatal("expected tail of output to be kept")
	}
}
