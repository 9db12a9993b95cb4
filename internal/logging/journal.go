package logging

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// EventJournal persists log events to disk so clients can replay history
// after the in-memory stream buffer rolls over. Each daemon run starts a
// fresh journal.
type EventJournal struct {
	path string
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewEventJournal creates (or truncates) an on-disk journal at path. An empty
// path disables journaling and returns a nil journal.
func NewEventJournal(path string) (*EventJournal, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	if err := ensureParentDir(trimmed); err != nil {
		return nil, fmt.Errorf("ensure journal dir: %w", err)
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("initialize journal %s: %w", trimmed, err)
	}
	return &EventJournal{
		path: trimmed,
		file: file,
		enc:  json.NewEncoder(file),
	}, nil
}

// Append writes the event to the journal. Write failures are swallowed so a
// full disk never blocks logging.
func (j *EventJournal) Append(evt LogEvent) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		file, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return
		}
		j.file = file
		j.enc = json.NewEncoder(file)
	}
	_ = j.enc.Encode(evt)
}

// Replay returns journaled events with sequence greater than since, bounded
// by limit (0 means unlimited), along with the highest sequence observed.
func (j *EventJournal) Replay(since uint64, limit int) ([]LogEvent, uint64, error) {
	if j == nil || j.path == "" {
		return nil, since, nil
	}
	file, err := os.Open(j.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, since, nil
		}
		return nil, since, fmt.Errorf("open journal %s: %w", j.path, err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	highest := since
	var result []LogEvent
	for {
		var evt LogEvent
		if err := decoder.Decode(&evt); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return result, highest, fmt.Errorf("decode journal %s: %w", j.path, err)
		}
		if evt.Sequence > highest {
			highest = evt.Sequence
		}
		if evt.Sequence <= since {
			continue
		}
		result = append(result, evt)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, highest, nil
}

// Close releases the journal file handle.
func (j *EventJournal) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	var err error
	if j.file != nil {
		err = j.file.Close()
	}
	j.file = nil
	j.enc = nil
	return err
}
