package cleanup

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeAged(t *testing.T, path string, age time.Duration) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("data"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	ts := time.Now().Add(-age)
	if err := os.Chtimes(path, ts, ts); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestSweep(t *testing.T) {
	temp := t.TempDir()
	outputs := t.TempDir()

	oldUpload := filepath.Join(temp, "old.mp4")
	freshUpload := filepath.Join(temp, "fresh.mp4")
	oldResult := filepath.Join(outputs, "2025", "01", "02", "a_enhanced.mp4")
	keptResult := filepath.Join(outputs, "2025", "01", "03", "b_enhanced.mp4")

	writeAged(t, oldUpload, 2*time.Hour)
	writeAged(t, freshUpload, time.Minute)
	writeAged(t, oldResult, 48*time.Hour)
	writeAged(t, keptResult, 2*time.Hour)

	s := NewScheduler(time.Hour,
		Target{Dir: temp, MaxAge: time.Hour},
		Target{Dir: outputs, MaxAge: 24 * time.Hour},
	)

	if n := s.Sweep(); n != 2 {
		t.Errorf("expected 2 files deleted, got %d", n)
	}
	if exists(oldUpload) || exists(oldResult) {
		t.Error("expected expired files to be deleted")
	}
	if !exists(freshUpload) || !exists(keptResult) {
		t.Error("expected fresh files to be kept")
	}
	if exists(filepath.Join(outputs, "2025", "01", "02")) {
		t.Error("expected empty date folder to be removed")
	}
	if !exists(filepath.Join(outputs, "2025", "01", "03")) {
		t.Error("expected non-empty date folder to be kept")
	}
}

func TestSweep_IgnoresMissingAndDisabledTargets(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "old.mp4")
	writeAged(t, file, 72*time.Hour)

	s := NewScheduler(time.Hour,
		Target{Dir: filepath.Join(dir, "missing"), MaxAge: time.Hour},
		Target{Dir: dir, MaxAge: 0},
		Target{Dir: "", MaxAge: time.Hour},
	)
	if n := s.Sweep(); n != 0 {
		t.Errorf("expected nothing deleted, got %d", n)
	}
	if !exists(file) {
		t.Error("expected file in a disabled target to be kept")
	}
}

func TestStartStop(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "old.mp4")
	writeAged(t, file, 2*time.Hour)

	s := NewScheduler(time.Hour, Target{Dir: dir, MaxAge: time.Hour})
	s.Start()
	s.Stop()
	s.Stop()

	if exists(file) {
		t.Error("expected initial sweep to delete the expired file")
	}
}

func TestEnsureDirs(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "temp")
	b := filepath.Join(root, "outputs", "nested")

	if err := EnsureDirs(a, "", b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists(a) || !exists(b) {
		t.Error("expected directories to be created")
	}
}

func TestSweep_KeepsSelectedFile(t *testing.T) {
	dir := t.TempDir()
	selected := filepath.Join(dir, "selected.mp4")
	stale := filepath.Join(dir, "stale.mp4")
	writeAged(t, selected, 48*time.Hour)
	writeAged(t, stale, 48*time.Hour)

	s := NewScheduler(time.Hour, Target{
		Dir:    dir,
		MaxAge: time.Hour,
		Keep:   func(path string) bool { return path == selected },
	})

	if n := s.Sweep(); n != 1 {
		t.Errorf("expected 1 file deleted, got %d", n)
	}
	if !exists(selected) {
		t.Error("expected the selected file to survive the sweep")
	}
	if exists(stale) {
		t.Error("expected the stale file to be deleted")
	}
}
