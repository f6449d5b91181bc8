package types

import "time"

// Remote job status values reported by the enhancement backend
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

// JobState is a step of the client-side job lifecycle
type JobState string

// Lifecycle states. Job.State holds one of these, never a remote status.
const (
	JobIdle         JobState = "idle"
	JobFileSelected JobState = "file_selected"
	JobUploading    JobState = "uploading"
	JobStarting     JobState = "starting"
	JobPolling      JobState = "polling"
	JobCompleted    JobState = "completed"
	JobFailed       JobState = "failed"
)

// IsTerminal reports whether no further automatic transitions follow s
func (s JobState) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Accepted video MIME types
const (
	MimeMP4       = "video/mp4"
	MimeQuickTime = "video/quicktime"
	MimeAVI       = "video/x-msvideo"
)

// MaxUploadBytes is the largest file the client will upload
const MaxUploadBytes int64 = 100 * 1024 * 1024

// DefaultModel is used when no model has been chosen
const DefaultModel = "realesrgan-x4plus"

// ModelOption is one entry of the model selector
type ModelOption struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

// DefaultModels is the fixed model list offered to the user
var DefaultModels = []ModelOption{
	{Value: "realesrgan-x4plus", Label: "General (x4)"},
	{Value: "realesrgan-x4plus-anime", Label: "Anime / Face (x4)"},
	{Value: "realesr-animevideov3-x2", Label: "Anime video v3 (x2)"},
	{Value: "realesr-animevideov3-x3", Label: "Anime video v3 (x3)"},
	{Value: "realesr-animevideov3-x4", Label: "Anime video v3 (x4)"},
}

// Job is the client-side record of one enhancement flow
type Job struct {
	ID         string    `json:"id"`
	FileName   string    `json:"file_name"`
	FileType   string    `json:"file_type"`
	FileSize   int64     `json:"file_size"`
	Model      string    `json:"model"`
	State      string    `json:"state"`
	Progress   float64   `json:"progress"`
	Message    string    `json:"message,omitempty"`
	ResultURL  string    `json:"result_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// UploadResponse is the body returned by the upload endpoint
type UploadResponse struct {
	JobID    string `json:"jobId"`
	Filename string `json:"filename"`
}

// StartRequest is the body sent to the enhance endpoint
type StartRequest struct {
	JobID string `json:"jobId"`
	Model string `json:"model"`
}

// StartResponse acknowledges a start request
type StartResponse struct {
	OK bool `json:"ok"`
}

// StatusResponse is the body returned by the status endpoint.
// Progress is a pointer because the backend may omit it.
type StatusResponse struct {
	ID              string   `json:"id,omitempty"`
	Status          string   `json:"status"`
	Progress        *float64 `json:"progress,omitempty"`
	Message         string   `json:"message,omitempty"`
	ResultURL       string   `json:"resultUrl,omitempty"`
	Model           string   `json:"model,omitempty"`
	ProcessedFrames *int     `json:"processedFrames,omitempty"`
	TotalFrames     *int     `json:"totalFrames,omitempty"`
	AvgMsPerFrame   *float64 `json:"avgMsPerFrame,omitempty"`
}
