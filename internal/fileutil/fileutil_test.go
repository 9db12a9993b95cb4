package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestCopyFileVerifiedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := writeTemp(t, dir, "src.mkv", "encoded video payload")
	dst := filepath.Join(dir, "dst.mkv")

	if err := CopyFileVerified(src, dst); err != nil {
		t.Fatalf("CopyFileVerified returned error: %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read copy: %v", err)
	}
	if string(got) != "encoded video payload" {
		t.Fatalf("copy content = %q", got)
	}
}

func TestCopyFileVerifiedMissingSource(t *testing.T) {
	dir := t.TempDir()
	if err := CopyFileVerified(filepath.Join(dir, "missing.mkv"), filepath.Join(dir, "out.mkv")); err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestCopyFileModeSetsPermissions(t *testing.T) {
	dir := t.TempDir()
	src := writeTemp(t, dir, "src.bin", "data")
	dst := filepath.Join(dir, "dst.bin")

	if err := CopyFileMode(src, dst, 0o600); err != nil {
		t.Fatalf("CopyFileMode returned error: %v", err)
	}
	info, err := os.Stat(dst)
	if err != nil {
		t.Fatalf("stat copy: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestPlaceMovesAndCreatesParents(t *testing.T) {
	dir := t.TempDir()
	src := writeTemp(t, dir, "finished.mkv", "final artifact")
	dst := filepath.Join(dir, "library", "movies", "finished.mkv")

	if err := Place(src, dst); err != nil {
		t.Fatalf("Place returned error: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("source still present after place: %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read placed file: %v", err)
	}
	if string(got) != "final artifact" {
		t.Fatalf("placed content = %q", got)
	}
}

func TestPlaceOverwritesExistingDestination(t *testing.T) {
	dir := t.TempDir()
	src := writeTemp(t, dir, "new.mkv", "new encode")
	dst := writeTemp(t, dir, "old.mkv", "old encode")

	if err := Place(src, dst); err != nil {
		t.Fatalf("Place returned error: %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read placed file: %v", err)
	}
	if string(got) != "new encode" {
		t.Fatalf("placed content = %q, want new encode", got)
	}
}
