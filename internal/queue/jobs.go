package queue

import (
	"time"

	"github.com/codebuildervaibhav/video-enhancer/internal/types"
)

// Task is a finished job waiting to be archived
type Task struct {
	Job        types.Job
	EnqueuedAt time.Time
}

// NewTask wraps job for the archive queue
func NewTask(job types.Job) *Task {
	return &Task{
		Job:        job,
		EnqueuedAt: time.Now(),
	}
}
