package remote

import "fmt"

// UploadError is returned when the upload endpoint answers with a non-2xx status
type UploadError struct {
	StatusCode int
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("Upload failed: %d", e.StatusCode)
}

// StartError is returned when the enhance endpoint answers with a non-2xx status
type StartError struct {
	StatusCode int
}

func (e *StartError) Error() string {
	return fmt.Sprintf("Start failed: %d", e.StatusCode)
}

// StatusError is returned when the status endpoint answers with a non-2xx status
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Status failed: %d", e.StatusCode)
}

// CancelError is returned when the cancel endpoint answers with a non-2xx status
type CancelError struct {
	StatusCode int
}

func (e *CancelError) Error() string {
	return fmt.Sprintf("Cancel failed: %d", e.StatusCode)
}

// NetworkError wraps transport and decoding failures
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("Network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
