package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidTransition = errors.New("invalid stage transition")
)

// SegmentationError reports that the source could not be split. Output holds
// the diagnostic output of the conversion process, when one ran.
type SegmentationError struct {
	Source string
	Output string
	Err    error
}

func (e *SegmentationError) Error() string {
	msg := fmt.Sprintf("segment %s: %v", e.Source, e.Err)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

func (e *SegmentationError) Unwrap() error { return e.Err }

type AudioExtractionError struct {
	SegmentIndex int
	Output       string
	Err          error
}

func (e *AudioExtractionError) Error() string {
	msg := fmt.Sprintf("extract audio for segment %d: %v", e.SegmentIndex, e.Err)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

func (e *AudioExtractionError) Unwrap() error { return e.Err }

type TranscriptionCause string

const (
	CauseTimeout           TranscriptionCause = "timeout"
	CauseRateLimited       TranscriptionCause = "rate_limited"
	CauseServiceError      TranscriptionCause = "service_error"
	CauseMalformedResponse TranscriptionCause = "malformed_response"
)

// TranscriptionError is returned by the transcription client. SegmentIndex is
// -1 until a segment worker tags it.
type TranscriptionError struct {
	SegmentIndex int
	Cause        TranscriptionCause
	StatusCode   int
	RetryAfter   time.Duration
	Err          error
}

func NewTranscriptionError(cause TranscriptionCause, err error) *TranscriptionError {
	return &TranscriptionError{SegmentIndex: -1, Cause: cause, Err: err}
}

func (e *TranscriptionError) Error() string {
	if e.SegmentIndex < 0 {
		return fmt.Sprintf("transcribe (%s): %v", e.Cause, e.Err)
	}
	return fmt.Sprintf("transcribe segment %d (%s): %v", e.SegmentIndex, e.Cause, e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// PersistenceError means the transcript was fully assembled but could not be
// saved. Transcript holds the assembled text so the save can be retried.
type PersistenceError struct {
	TranscriptID int64
	Transcript   string
	Err          error
}

func (e *PersistenceError) Error() string {
	if e.TranscriptID == 0 {
		return fmt.Sprintf("persist transcript: %v", e.Err)
	}
	return fmt.Sprintf("persist transcript %d: %v", e.TranscriptID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

type WorkspaceError struct {
	Op   string // "create" or "cleanup"
	Path string
	Err  error
}

func (e *WorkspaceError) Error() string {
	return fmt.Sprintf("workspace %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *WorkspaceError) Unwrap() error { return e.Err }

// SegmentIndexOf returns the index of the segment that caused err, if any.
func SegmentIndexOf(err error) (int, bool) {
	var ae *AudioExtractionError
	if errors.As(err, &ae) {
		return ae.SegmentIndex, true
	}
	var te *TranscriptionError
	if errors.As(err, &te) && te.SegmentIndex >= 0 {
		return te.SegmentIndex, true
	}
	return 0, false
}
