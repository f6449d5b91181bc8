package cleanup

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Target is a directory whose files expire after MaxAge
type Target struct {
	Dir    string
	MaxAge time.Duration
	// Keep reports files that must survive regardless of age
	Keep func(path string) bool
}

// Scheduler periodically prunes staged uploads and downloaded results
type Scheduler struct {
	targets  []Target
	interval time.Duration
	now      func() time.Time
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a new cleanup scheduler
func NewScheduler(interval time.Duration, targets ...Target) *Scheduler {
	return &Scheduler{
		targets:  targets,
		interval: interval,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Start runs one sweep immediately and then one per interval
func (s *Scheduler) Start() {
	log.Println("[cleanup] running initial sweep...")
	s.Sweep()

	ticker := time.NewTicker(s.interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-s.stopChan:
				ticker.Stop()
				return
			}
		}
	}()

	log.Printf("[cleanup] scheduler started (interval: %s, targets: %d)", s.interval, len(s.targets))
}

// Stop stops the cleanup scheduler
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		log.Println("[cleanup] scheduler stopped")
	})
}

// Sweep removes expired files from every target and returns how many were deleted
func (s *Scheduler) Sweep() int {
	total := 0
	for _, t := range s.targets {
		total += s.sweepDir(t)
	}
	return total
}

func (s *Scheduler) sweepDir(t Target) int {
	if t.Dir == "" || t.MaxAge <= 0 {
		return 0
	}

	now := s.now()
	var deletedCount int
	var deletedSize int64

	err := filepath.Walk(t.Dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return nil
		}

		age := now.Sub(info.ModTime())
		if age <= t.MaxAge {
			return nil
		}
		if t.Keep != nil && t.Keep(path) {
			return nil
		}

		size := info.Size()
		if err := os.Remove(path); err != nil {
			log.Printf("[cleanup] failed to delete %s: %v", path, err)
			return nil
		}
		deletedCount++
		deletedSize += size
		log.Printf("[cleanup] deleted %s (age: %s, size: %dKB)",
			filepath.Base(path), age.Round(time.Minute), size/1024)
		return nil
	})
	if err != nil {
		log.Printf("[cleanup] error walking %s: %v", t.Dir, err)
	}

	pruneEmptyDirs(t.Dir)

	if deletedCount > 0 {
		log.Printf("[cleanup] %s: %d files deleted, %.2fMB freed",
			t.Dir, deletedCount, float64(deletedSize)/(1024*1024))
	}
	return deletedCount
}

// pruneEmptyDirs removes empty date folders below root, deepest first
func pruneEmptyDirs(root string) {
	var dirs []string
	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err == nil && info.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	for i := len(dirs) - 1; i >= 0; i-- {
		if strings.HasPrefix(filepath.Base(dirs[i]), ".") {
			continue
		}
		// fails harmlessly when the directory is not empty
		os.Remove(dirs[i])
	}
}

// EnsureDirs creates every directory that does not exist yet
func EnsureDirs(dirs ...string) error {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
		log.Printf("[cleanup] directory ready: %s", dir)
	}
	return nil
}
