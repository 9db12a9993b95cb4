package main

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"squeeze/internal/queue"
	"squeeze/internal/testsupport"
)

func seedFailure(t *testing.T, env *cliTestEnv, itemID int64) *queue.FailureRecord {
	t.Helper()
	record := &queue.FailureRecord{
		ItemID:   itemID,
		Stage:    "encoding",
		Category: queue.FailureProcessFailure,
		Message:  "encoder exited with status 1",
		Context:  map[string]string{"exit_code": "1"},
	}
	if err := env.store.RecordFailure(context.Background(), record); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	return record
}

func TestFailuresList(t *testing.T) {
	env := setupCLITestEnv(t)

	item := testsupport.NewItem(t, env.store, "/media/library/Alpha.mkv")
	seedFailure(t, env, item.ID)

	out, _, err := runCLI(t, []string{"failures"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("failures: %v", err)
	}
	requireContains(t, out, "encoding")
	requireContains(t, out, "process_failure")
	requireContains(t, out, "encoder exited with status 1")

	out, _, err = runCLI(t, []string{"failures", fmt.Sprintf("%d", item.ID)}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("failures <item>: %v", err)
	}
	requireContains(t, out, "encoder exited with status 1")
}

func TestFailuresListEmpty(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"failures"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("failures empty: %v", err)
	}
	requireContains(t, out, "No unresolved failures")
}

func TestFailuresShow(t *testing.T) {
	env := setupCLITestEnv(t)

	item := testsupport.NewItem(t, env.store, "/media/library/Alpha.mkv")
	record := seedFailure(t, env, item.ID)

	out, _, err := runCLI(t, []string{"failures", "show", fmt.Sprintf("%d", record.ID)}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("failures show: %v", err)
	}
	requireContains(t, out, "encoder exited with status 1")
	requireContains(t, out, "Context:")
	requireContains(t, out, "exit_code: 1")
}

func TestFailuresShowNotFound(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"failures", "show", "9999"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("failures show not found: %v", err)
	}
	requireContains(t, out, "Failure 9999 not found")
}

func TestFailuresJSON(t *testing.T) {
	env := setupCLITestEnv(t)

	item := testsupport.NewItem(t, env.store, "/media/library/Alpha.mkv")
	seedFailure(t, env, item.ID)

	out, _, err := runCLI(t, []string{"failures", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("failures --json: %v", err)
	}

	var records []map[string]any
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("invalid JSON: %v\noutput: %s", err, out)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0]["category"] != "process_failure" {
		t.Fatalf("expected category process_failure, got %v", records[0]["category"])
	}
	if records[0]["itemId"] != float64(item.ID) {
		t.Fatalf("expected itemId %d, got %v", item.ID, records[0]["itemId"])
	}
}
