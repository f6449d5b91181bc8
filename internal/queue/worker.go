package queue

import (
	"errors"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/codebuildervaibhav/video-enhancer/internal/types"
)

// ErrStopped is returned when enqueueing after Stop
var ErrStopped = errors.New("archive queue is stopped")

// Archiver does the slow part of finishing a job
type Archiver interface {
	JobStarted(job types.Job)
	JobFinished(job types.Job)
}

// WorkerPool hands finished jobs to the archiver off the polling goroutine.
// It satisfies the controller's recorder hooks.
type WorkerPool struct {
	taskQueue   chan *Task
	workerCount int
	archiver    Archiver

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(workerCount int, archiver Archiver) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &WorkerPool{
		taskQueue:   make(chan *Task, 100),
		workerCount: workerCount,
		archiver:    archiver,
	}
}

// Start initializes all workers
func (wp *WorkerPool) Start() {
	log.Printf("[queue] starting %d archive workers", wp.workerCount)
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// JobStarted is recorded synchronously
func (wp *WorkerPool) JobStarted(job types.Job) {
	wp.archiver.JobStarted(job)
}

// JobFinished queues job for archiving
func (wp *WorkerPool) JobFinished(job types.Job) {
	if err := wp.Enqueue(NewTask(job)); err != nil {
		log.Printf("[queue] dropping job %s: %v", job.ID, err)
	}
}

// Enqueue adds a task to the queue
func (wp *WorkerPool) Enqueue(task *Task) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stopped {
		return ErrStopped
	}
	wp.taskQueue <- task
	log.Printf("[queue] job %s enqueued (state: %s)", task.Job.ID, task.Job.State)
	return nil
}

// Stop drains the queue and waits for the workers to exit
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	close(wp.taskQueue)
	wp.mu.Unlock()

	wp.wg.Wait()
	log.Println("[queue] archive workers stopped")
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for task := range wp.taskQueue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[queue] worker %d: PANIC archiving job %s: %v\n%s",
						id, task.Job.ID, r, string(debug.Stack()))
				}
			}()

			wp.process(id, task)
		}()
	}
}

func (wp *WorkerPool) process(workerID int, task *Task) {
	log.Printf("[queue] worker %d: archiving job %s (waited %s)",
		workerID, task.Job.ID, time.Since(task.EnqueuedAt).Round(time.Millisecond))
	wp.archiver.JobFinished(task.Job)
}
