package storage

import (
	"context"
	"log"
	"time"

	"github.com/codebuildervaibhav/video-enhancer/internal/types"
)

// Exporter copies a downloaded result somewhere else
type Exporter interface {
	Upload(ctx context.Context, job types.Job, localPath string) (string, error)
}

// Archiver records job milestones in the history database and, for
// completed jobs, downloads the result and optionally exports it.
// Any of its collaborators may be nil.
type Archiver struct {
	history  *HistoryDB
	local    *LocalStorage
	exporter Exporter
	timeout  time.Duration
	backoff  func(attempt int) time.Duration
}

// NewArchiver creates an archiver
func NewArchiver(history *HistoryDB, local *LocalStorage, exporter Exporter, timeout time.Duration) *Archiver {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Archiver{
		history:  history,
		local:    local,
		exporter: exporter,
		timeout:  timeout,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * time.Second
		},
	}
}

// JobStarted records a job once polling begins
func (a *Archiver) JobStarted(job types.Job) {
	if a.history == nil {
		return
	}
	if err := a.history.SaveJob(job); err != nil {
		log.Printf("[archive] %v", err)
	}
}

// JobFinished records the outcome and archives completed results
func (a *Archiver) JobFinished(job types.Job) {
	if a.history != nil {
		if err := a.history.SaveJob(job); err != nil {
			log.Printf("[archive] %v", err)
		}
	}

	if job.State != string(types.JobCompleted) || a.local == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	localPath, err := a.local.SaveResult(ctx, job)
	if err != nil {
		log.Printf("[archive] job %s: result download failed: %v", job.ID, err)
		return
	}
	log.Printf("[archive] job %s: result saved to %s", job.ID, localPath)

	if a.history != nil {
		if err := a.history.SetLocalPath(job.ID, localPath); err != nil {
			log.Printf("[archive] %v", err)
		}
	}

	if a.exporter == nil {
		return
	}

	var driveURL string
	for attempt := 1; attempt <= 3; attempt++ {
		driveURL, err = a.exporter.Upload(ctx, job, localPath)
		if err == nil {
			break
		}
		log.Printf("[archive] job %s: Google Drive upload attempt %d/3 failed: %v", job.ID, attempt, err)
		if attempt < 3 {
			select {
			case <-time.After(a.backoff(attempt)):
			case <-ctx.Done():
				return
			}
		}
	}
	if err != nil {
		log.Printf("[archive] job %s: WARNING - Google Drive upload failed after 3 attempts, result kept locally only", job.ID)
		return
	}

	log.Printf("[archive] job %s: exported to %s", job.ID, driveURL)
	if a.history != nil {
		if err := a.history.SetDriveURL(job.ID, driveURL); err != nil {
			log.Printf("[archive] %v", err)
		}
	}
}
