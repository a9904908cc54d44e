package cleanup

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSweep_RemovesOnlyStaleDirs(t *testing.T) {
	dir := t.TempDir()

	stale := filepath.Join(dir, "render-old")
	fresh := filepath.Join(dir, "render-new")
	for _, d := range []string{stale, fresh} {
		if err := os.Mkdir(d, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	// plain files are never touched
	keep := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(keep, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	j := New(dir, time.Hour, "0 4 * * *")
	if removed := j.Sweep(); removed != 1 {
		t.Fatalf("want 1 removed, got %d", removed)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("stale dir must be gone")
	}
	for _, p := range []string{fresh, keep} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("%s must survive: %v", p, err)
		}
	}
}

func TestSweep_MissingDir(t *testing.T) {
	j := New(filepath.Join(t.TempDir(), "nope"), time.Hour, "0 4 * * *")
	if removed := j.Sweep(); removed != 0 {
		t.Fatalf("want 0 removed, got %d", removed)
	}
}
