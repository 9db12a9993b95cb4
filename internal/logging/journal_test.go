package logging

import (
	"path/filepath"
	"testing"
)

func TestEventJournalReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.events")
	journal, err := NewEventJournal(path)
	if err != nil {
		t.Fatalf("NewEventJournal: %v", err)
	}
	defer journal.Close()

	stream := NewEventStream()
	stream.AddSink(journal)
	for i := 0; i < 3; i++ {
		stream.Publish(LogEvent{Message: "archived"})
	}

	events, highest, err := journal.Replay(1, 0)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events after seq 1, got %d", len(events))
	}
	if highest != 3 {
		t.Fatalf("highest = %d, want 3", highest)
	}
}

func TestEventJournalEmptyPathDisabled(t *testing.T) {
	journal, err := NewEventJournal("   ")
	if err != nil {
		t.Fatalf("NewEventJournal: %v", err)
	}
	if journal != nil {
		t.Fatal("expected nil journal for blank path")
	}
	journal.Append(LogEvent{})
	if _, _, err := journal.Replay(0, 0); err != nil {
		t.Fatalf("Replay on nil journal: %v", err)
	}
}
