package controller

import (
	"context"
	"sync"
	"time"

	"github.com/codebuildervaibhav/video-enhancer/internal/selector"
	"github.com/codebuildervaibhav/video-enhancer/internal/types"
)

// Remote is the backend the controller drives
type Remote interface {
	Upload(ctx context.Context, file selector.File, model string) (*types.UploadResponse, error)
	Start(ctx context.Context, jobID, model string) error
	Status(ctx context.Context, jobID string) (*types.StatusResponse, error)
	Cancel(ctx context.Context, jobID string) error
}

// View renders controller state. Implementations must not call back into
// the controller synchronously.
type View interface {
	SetProgress(pct float64, label string)
	SetLabel(label string)
	ShowFile(meta string)
	ClearFileInput()
	SetTriggerEnabled(enabled bool)
	ShowResult(url string)
}

// Notifier surfaces user-facing error messages
type Notifier interface {
	Notify(msg string)
}

// Recorder observes job lifecycle milestones
type Recorder interface {
	JobStarted(job types.Job)
	JobFinished(job types.Job)
}

// Task is a cancellable repeating task
type Task interface {
	Stop()
}

// Scheduler runs fn every interval until the returned Task is stopped
type Scheduler interface {
	Every(interval time.Duration, fn func()) Task
}

// TickerScheduler runs each task on its own goroutine driven by a time.Ticker.
// A slow fn delays the next run instead of overlapping it.
type TickerScheduler struct{}

// Every starts the repeating task
func (TickerScheduler) Every(interval time.Duration, fn func()) Task {
	t := &tickerTask{
		ticker: time.NewTicker(interval),
		stop:   make(chan struct{}),
	}

	go func() {
		defer t.ticker.Stop()
		for {
			select {
			case <-t.ticker.C:
				select {
				case <-t.stop:
					return
				default:
				}
				fn()
			case <-t.stop:
				return
			}
		}
	}()

	return t
}

type tickerTask struct {
	ticker *time.Ticker
	stop   chan struct{}
	once   sync.Once
}

func (t *tickerTask) Stop() {
	t.once.Do(func() { close(t.stop) })
}

type nopRecorder struct{}

func (nopRecorder) JobStarted(types.Job)  {}
func (nopRecorder) JobFinished(types.Job) {}
