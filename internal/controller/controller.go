package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/codebuildervaibhav/video-enhancer/internal/selector"
	"github.com/codebuildervaibhav/video-enhancer/internal/types"
)

// State is a step of the job lifecycle
type State = types.JobState

// Lifecycle states
const (
	StateIdle         = types.JobIdle
	StateFileSelected = types.JobFileSelected
	StateUploading    = types.JobUploading
	StateStarting     = types.JobStarting
	StatePolling      = types.JobPolling
	StateCompleted    = types.JobCompleted
	StateFailed       = types.JobFailed
)

// DefaultPollInterval is the fixed delay between status requests
const DefaultPollInterval = 1200 * time.Millisecond

// Progress labels
const (
	LabelIdle       = "Idle"
	LabelUploading  = "Uploading…"
	LabelStarting   = "Starting enhancement…"
	LabelProcessing = "Processing…"
	LabelDone       = "Done"
	LabelFailed     = "Failed"
	LabelCanceled   = "Canceled"
)

// Controller errors
var (
	ErrNoFile     = errors.New("no file selected")
	ErrNotReady   = errors.New("enhancement cannot be triggered right now")
	ErrBusy       = errors.New("an enhancement is already in progress")
	ErrSuperseded = errors.New("flow was reset before it finished")
	ErrNoJob      = errors.New("no job is being processed")
	ErrNoFlow     = errors.New("no enhancement has been started")
)

// Options configures a JobController
type Options struct {
	// PollInterval defaults to DefaultPollInterval
	PollInterval time.Duration
	// Origin resolves relative result URLs
	Origin *url.URL
	// DefaultModel is used when Enhance is called with an empty model
	DefaultModel string
	// LegacyReset keeps a running poll task alive across Reset and lets an
	// interrupted upload/start continue, as the browser client always did.
	LegacyReset bool
	Scheduler   Scheduler
	Recorder    Recorder
	// Release is called with a selection that was replaced or reset
	Release func(selector.File)
}

// Snapshot is a copy of everything the view shows
type Snapshot struct {
	State          State   `json:"state"`
	JobID          string  `json:"job_id,omitempty"`
	Model          string  `json:"model,omitempty"`
	Progress       float64 `json:"progress"`
	Label          string  `json:"label"`
	FileMeta       string  `json:"file_meta"`
	ResultURL      string  `json:"result_url"`
	TriggerEnabled bool    `json:"trigger_enabled"`
}

// flow is one upload → start → poll run
type flow struct {
	id       int
	job      types.Job
	task     Task
	polling  bool
	finished bool
	done     chan struct{}
}

// JobController owns the selected file, the active job and its polling task
type JobController struct {
	mu sync.Mutex

	remote   Remote
	view     View
	notifier Notifier
	opts     Options

	ctx    context.Context
	cancel context.CancelFunc

	state          State
	file           *selector.File
	progress       float64
	label          string
	fileMeta       string
	resultURL      string
	triggerEnabled bool

	current *flow
	nextID  int
}

// New creates a controller in the Idle state
func New(remote Remote, view View, notifier Notifier, opts Options) *JobController {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.DefaultModel == "" {
		opts.DefaultModel = types.DefaultModel
	}
	if opts.Scheduler == nil {
		opts.Scheduler = TickerScheduler{}
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &JobController{
		remote:   remote,
		view:     view,
		notifier: notifier,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		state:    StateIdle,
	}

	c.mu.Lock()
	c.setProgressLocked(0, LabelIdle)
	c.setTriggerLocked(false)
	c.mu.Unlock()
	return c
}

// SelectFile validates f and makes it the current selection
func (c *JobController) SelectFile(f selector.File) error {
	c.mu.Lock()

	if c.isBusyLocked() {
		c.mu.Unlock()
		return ErrBusy
	}

	if err := selector.Validate(f); err != nil {
		c.mu.Unlock()
		log.Printf("[controller] rejected %s (%s, %d bytes): %v", f.Name, f.Type, f.Size, err)
		c.notifier.Notify(err.Error())
		return err
	}

	prev := c.file
	c.file = &f
	c.fileMeta = selector.Describe(f)
	c.view.ShowFile(c.fileMeta)
	c.setTriggerLocked(true)
	c.setResultLocked("")
	c.state = StateFileSelected
	meta := c.fileMeta
	c.mu.Unlock()

	log.Printf("[controller] selected %s", meta)
	if prev != nil && prev.Path != f.Path {
		c.release(*prev)
	}
	return nil
}

// SelectedPath returns the path of the current selection, if any
func (c *JobController) SelectedPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file == nil {
		return ""
	}
	return c.file.Path
}

func (c *JobController) release(f selector.File) {
	if c.opts.Release != nil {
		c.opts.Release(f)
	}
}

// Enhance uploads the selected file, starts the job and begins polling.
// It returns once polling has started or the flow has failed.
func (c *JobController) Enhance(ctx context.Context, model string) error {
	if model == "" {
		model = c.opts.DefaultModel
	}

	c.mu.Lock()
	if c.file == nil {
		c.mu.Unlock()
		return ErrNoFile
	}
	if !c.triggerEnabled || c.isBusyLocked() {
		c.mu.Unlock()
		return ErrNotReady
	}

	if c.current != nil && !c.opts.LegacyReset {
		c.stopTaskLocked(c.current)
	}

	c.nextID++
	fl := &flow{
		id:   c.nextID,
		done: make(chan struct{}),
		job: types.Job{
			FileName:  c.file.Name,
			FileType:  c.file.Type,
			FileSize:  c.file.Size,
			Model:     model,
			CreatedAt: time.Now(),
		},
	}
	c.current = fl
	file := *c.file

	c.setTriggerLocked(false)
	c.setResultLocked("")
	c.state = StateUploading
	c.setProgressLocked(3, LabelUploading)
	c.mu.Unlock()

	log.Printf("[controller] uploading %s (model: %s)", file.Name, model)
	upload, err := c.remote.Upload(ctx, file, model)

	c.mu.Lock()
	if !c.ownsLocked(fl) {
		c.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		c.failStepLocked(fl, err)
		c.mu.Unlock()
		c.finish(fl)
		return err
	}

	fl.job.ID = upload.JobID
	c.state = StateStarting
	c.setProgressLocked(5, LabelStarting)
	c.mu.Unlock()

	log.Printf("[controller] starting job %s", upload.JobID)
	err = c.remote.Start(ctx, upload.JobID, model)

	c.mu.Lock()
	if !c.ownsLocked(fl) {
		c.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		c.failStepLocked(fl, err)
		c.mu.Unlock()
		c.finish(fl)
		return err
	}

	c.state = StatePolling
	c.setProgressLocked(8, LabelProcessing)
	fl.job.State = string(StatePolling)
	fl.polling = true
	fl.task = c.opts.Scheduler.Every(c.opts.PollInterval, func() { c.poll(fl) })
	job := fl.job
	c.mu.Unlock()

	c.opts.Recorder.JobStarted(job)
	log.Printf("[controller] polling job %s every %s", job.ID, c.opts.PollInterval)
	return nil
}

// poll runs one status request for fl and applies its outcome
func (c *JobController) poll(fl *flow) {
	c.mu.Lock()
	if !fl.polling {
		c.mu.Unlock()
		return
	}
	jobID := fl.job.ID
	c.mu.Unlock()

	status, err := c.remote.Status(c.ctx, jobID)

	c.mu.Lock()
	if !fl.polling {
		c.mu.Unlock()
		return
	}

	if err != nil {
		log.Printf("[controller] status for job %s failed: %v", jobID, err)
		c.stopTaskLocked(fl)
		c.notifier.Notify(err.Error())
		c.setTriggerLocked(true)
		c.state = StateFailed
		fl.job.Message = err.Error()
		c.endFlowLocked(fl, StateFailed)
		c.mu.Unlock()
		c.finish(fl)
		return
	}

	c.applyStatusLocked(fl, status)

	terminal := false
	switch {
	case status.Status == types.StatusCompleted && status.ResultURL != "":
		c.stopTaskLocked(fl)
		c.setProgressLocked(100, LabelDone)
		resolved := c.resolveResult(status.ResultURL)
		c.setResultLocked(resolved)
		c.setTriggerLocked(true)
		c.state = StateCompleted
		fl.job.ResultURL = resolved
		c.endFlowLocked(fl, StateCompleted)
		log.Printf("[controller] job %s completed: %s", jobID, resolved)
		terminal = true

	case status.Status == types.StatusFailed:
		c.stopTaskLocked(fl)
		c.setProgressLocked(100, LabelFailed)
		msg := status.Message
		if msg == "" {
			msg = "Unknown error"
		}
		c.notifier.Notify("Enhancement failed: " + msg)
		c.setTriggerLocked(true)
		c.state = StateFailed
		fl.job.Message = msg
		c.endFlowLocked(fl, StateFailed)
		log.Printf("[controller] job %s failed: %s", jobID, msg)
		terminal = true
	}
	c.mu.Unlock()

	if terminal {
		c.finish(fl)
	}
}

// applyStatusLocked updates the progress display from a non-terminal status
func (c *JobController) applyStatusLocked(fl *flow, status *types.StatusResponse) {
	if status.Progress != nil {
		pct := ClampProgress(*status.Progress)
		label := status.Message
		if label == "" {
			label = fmt.Sprintf("%s %s%%", LabelProcessing, strconv.FormatFloat(pct, 'f', -1, 64))
		}
		c.setProgressLocked(pct, label)
		fl.job.Progress = pct
	} else if status.Message != "" {
		c.label = status.Message
		c.view.SetLabel(status.Message)
	}
	if status.Message != "" {
		fl.job.Message = status.Message
	}

	if status.ProcessedFrames != nil && status.TotalFrames != nil {
		avg := 0.0
		if status.AvgMsPerFrame != nil {
			avg = *status.AvgMsPerFrame
		}
		log.Printf("[controller] job %s: %s, frames %d/%d (%.0f ms/frame)",
			fl.job.ID, status.Status, *status.ProcessedFrames, *status.TotalFrames, avg)
	}
}

// Cancel stops polling the running job and asks the backend to abandon it
func (c *JobController) Cancel(ctx context.Context) error {
	c.mu.Lock()
	fl := c.current
	if fl == nil || !fl.polling {
		c.mu.Unlock()
		return ErrNoJob
	}
	c.stopTaskLocked(fl)
	jobID := fl.job.ID
	c.mu.Unlock()

	log.Printf("[controller] canceling job %s", jobID)
	err := c.remote.Cancel(ctx, jobID)

	c.mu.Lock()
	if err != nil {
		c.notifier.Notify(err.Error())
	}
	if c.ownsLocked(fl) {
		c.setProgressLocked(100, LabelCanceled)
		c.setTriggerLocked(true)
		c.state = StateFailed
	}
	fl.job.Message = "Canceled by user"
	c.endFlowLocked(fl, StateFailed)
	c.mu.Unlock()

	c.finish(fl)
	return err
}

// Reset returns the controller and the view to their initial state
func (c *JobController) Reset() {
	c.mu.Lock()
	var abandoned *flow
	if c.current != nil && !c.opts.LegacyReset {
		abandoned = c.current
		c.stopTaskLocked(abandoned)
		abandoned.job.Message = "Reset by user"
		c.endFlowLocked(abandoned, StateFailed)
		c.current = nil
	}

	prev := c.file
	if c.opts.LegacyReset && c.isBusyLocked() {
		// the surviving upload still reads it
		prev = nil
	}
	c.file = nil
	c.view.ClearFileInput()
	c.fileMeta = ""
	c.view.ShowFile("")
	c.setProgressLocked(0, LabelIdle)
	c.setResultLocked("")
	c.setTriggerLocked(false)
	c.state = StateIdle
	c.mu.Unlock()

	log.Printf("[controller] reset")
	if abandoned != nil {
		c.finish(abandoned)
	}
	if prev != nil {
		c.release(*prev)
	}
}

// Wait blocks until the most recent flow has ended
func (c *JobController) Wait(ctx context.Context) (State, error) {
	c.mu.Lock()
	fl := c.current
	c.mu.Unlock()
	if fl == nil {
		return c.State(), ErrNoFlow
	}

	select {
	case <-fl.done:
		return c.State(), nil
	case <-ctx.Done():
		return c.State(), ctx.Err()
	}
}

// Close stops any polling task and aborts in-flight status requests
func (c *JobController) Close() {
	c.mu.Lock()
	if c.current != nil {
		c.stopTaskLocked(c.current)
	}
	c.mu.Unlock()
	c.cancel()
}

// State returns the current lifecycle state
func (c *JobController) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns a copy of the displayed state
func (c *JobController) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		State:          c.state,
		Progress:       c.progress,
		Label:          c.label,
		FileMeta:       c.fileMeta,
		ResultURL:      c.resultURL,
		TriggerEnabled: c.triggerEnabled,
	}
	if c.current != nil {
		s.JobID = c.current.job.ID
		s.Model = c.current.job.Model
	}
	return s
}

// ClampProgress limits pct to [0, 100]
func ClampProgress(pct float64) float64 {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

func (c *JobController) setProgressLocked(pct float64, label string) {
	c.progress = ClampProgress(pct)
	c.label = label
	c.view.SetProgress(c.progress, label)
}

func (c *JobController) setTriggerLocked(enabled bool) {
	c.triggerEnabled = enabled
	c.view.SetTriggerEnabled(enabled)
}

func (c *JobController) setResultLocked(u string) {
	c.resultURL = u
	c.view.ShowResult(u)
}

func (c *JobController) isBusyLocked() bool {
	switch c.state {
	case StateUploading, StateStarting, StatePolling:
		return true
	}
	return false
}

// ownsLocked reports whether fl may still drive the view
func (c *JobController) ownsLocked(fl *flow) bool {
	return c.current == fl || c.opts.LegacyReset
}

// failStepLocked handles an upload or start failure
func (c *JobController) failStepLocked(fl *flow, err error) {
	log.Printf("[controller] %v", err)
	c.notifier.Notify(err.Error())
	c.setTriggerLocked(true)
	c.state = StateFailed
	fl.job.Message = err.Error()
	c.endFlowLocked(fl, StateFailed)
}

func (c *JobController) stopTaskLocked(fl *flow) {
	fl.polling = false
	if fl.task != nil {
		fl.task.Stop()
	}
}

func (c *JobController) endFlowLocked(fl *flow, s State) {
	if fl.job.State == "" || !State(fl.job.State).IsTerminal() {
		fl.job.State = string(s)
	}
	if fl.job.FinishedAt.IsZero() {
		fl.job.FinishedAt = time.Now()
	}
}

// finish notifies the recorder once and releases waiters
func (c *JobController) finish(fl *flow) {
	c.mu.Lock()
	if fl.finished {
		c.mu.Unlock()
		return
	}
	fl.finished = true
	job := fl.job
	c.mu.Unlock()

	if job.ID != "" {
		c.opts.Recorder.JobFinished(job)
	}
	close(fl.done)
}

func (c *JobController) resolveResult(raw string) string {
	if c.opts.Origin == nil {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return c.opts.Origin.ResolveReference(ref).String()
}
