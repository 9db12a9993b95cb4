package queue_test

import (
	"errors"
	"io/fs"
	"testing"

	"squeeze/internal/queue"
	"squeeze/internal/services"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from    queue.Status
		to      queue.Status
		allowed bool
	}{
		{queue.StatusNeedsAnalysis, queue.StatusAnalyzed, true},
		{queue.StatusAnalyzed, queue.StatusQualitySearching, true},
		{queue.StatusQualitySearching, queue.StatusQualitySearched, true},
		{queue.StatusQualitySearched, queue.StatusEncoding, true},
		{queue.StatusEncoding, queue.StatusEncoded, true},
		{queue.StatusNeedsAnalysis, queue.StatusFailed, true},
		{queue.StatusEncoding, queue.StatusFailed, true},
		{queue.StatusNeedsAnalysis, queue.StatusQualitySearching, false},
		{queue.StatusAnalyzed, queue.StatusNeedsAnalysis, false},
		{queue.StatusEncoded, queue.StatusFailed, false},
		{queue.StatusFailed, queue.StatusFailed, false},
		{queue.StatusFailed, queue.StatusNeedsAnalysis, false},
		{queue.StatusEncoded, queue.StatusEncoding, false},
	}
	for _, tc := range cases {
		if got := queue.CanTransition(tc.from, tc.to); got != tc.allowed {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestParseStatus(t *testing.T) {
	status, ok := queue.ParseStatus("  Quality_Searching ")
	if !ok || status != queue.StatusQualitySearching {
		t.Fatalf("expected quality_searching, got %q ok=%v", status, ok)
	}
	if _, ok := queue.ParseStatus("ripping"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
	if _, ok := queue.ParseStatus(""); ok {
		t.Fatal("expected empty status to be rejected")
	}
}

func TestIsTerminalAndProcessing(t *testing.T) {
	if !queue.IsTerminal(queue.StatusEncoded) || !queue.IsTerminal(queue.StatusFailed) {
		t.Fatal("expected encoded and failed terminal")
	}
	if queue.IsTerminal(queue.StatusQualitySearched) {
		t.Fatal("quality_searched is not terminal")
	}
	if !queue.IsProcessingStatus(queue.StatusQualitySearching) || !queue.IsProcessingStatus(queue.StatusEncoding) {
		t.Fatal("expected claimed statuses to count as processing")
	}
	if queue.IsProcessingStatus(queue.StatusAnalyzed) {
		t.Fatal("analyzed is a waiting status, not processing")
	}
}

func TestDisplayNameFromPath(t *testing.T) {
	cases := map[string]string{
		"/library/movies/The Big Lift (1950).mkv": "The Big Lift (1950)",
		"clip.mp4": "clip",
		"":         "Unnamed Item",
	}
	for path, want := range cases {
		if got := queue.DisplayNameFromPath(path); got != want {
			t.Errorf("DisplayNameFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want queue.FailureCategory
	}{
		{"timeout marker", services.Wrap(services.ErrTimeout, "encoding", "encode", "deadline", nil), queue.FailureTimeout},
		{"command", services.Wrap(services.ErrExternalTool, "analysis", "probe", "exit 1", nil), queue.FailureCommandError},
		{"validation", services.Wrap(services.ErrValidation, "encoding", "validate", "empty output", nil), queue.FailureValidationError},
		{"panic", services.Wrap(services.ErrProcessFailure, "encoding", "execute", "worker panic", nil), queue.FailureProcessFailure},
		{"file", &fs.PathError{Op: "open", Path: "/x", Err: fs.ErrNotExist}, queue.FailureFileError},
		{"unknown", errors.New("weird"), queue.FailureUnknown},
		// Timeout outranks the command marker when both are present.
		{
			"timeout wrapping command",
			services.Wrap(services.ErrTimeout, "encoding", "encode", "killed",
				services.Wrap(services.ErrExternalTool, "encoding", "encode", "exit 137", nil)),
			queue.FailureTimeout,
		},
	}
	for _, tc := range cases {
		if got := queue.ClassifyError(tc.err); got != tc.want {
			t.Errorf("%s: ClassifyError = %s, want %s", tc.name, got, tc.want)
		}
	}
}
