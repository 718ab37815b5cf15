package domain

import (
	"errors"
	"fmt"
)

// ErrCanceled is surfaced on the error channel when the user cancels a job.
var ErrCanceled = errors.New("Canceled by user")

// ErrMissingURL is returned by job creation when the request has no source URL
var ErrMissingURL = errors.New("source url is required")

// ErrUnsupportedFormat is returned for formats other than audio/video
var ErrUnsupportedFormat = errors.New("unsupported format")

// ErrJobCanceled rejects resubmission of a job whose cancel flag is set.
var ErrJobCanceled = errors.New("job was canceled and cannot be restarted")

// ErrJobActive rejects submission of a job that is already queued or running.
var ErrJobActive = errors.New("job is already queued or running")

// ErrTransient marks errors that are worth another attempt.
var ErrTransient = errors.New("transient failure")

// PipelineError is returned by the external pipeline when it exits with a failure.
// HTTPStatus is set when the pipeline reported an HTTP error code.
type PipelineError struct {
	Message    string
	HTTPStatus int
	Err        error
}

func (e *PipelineError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("pipeline failed (http %d)", e.HTTPStatus)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Transient reports whether the HTTP status is one a server uses for
// temporary conditions.
func (e *PipelineError) Transient() bool {
	switch e.HTTPStatus {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// ErrInvalidQuality is returned for quality ceilings that are neither "best" nor a positive number.
var ErrInvalidQuality = errors.New("invalid quality")
