package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSegmentIndexOf(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantIndex int
		wantOK    bool
	}{
		{
			name:      "audio extraction",
			err:       &AudioExtractionError{SegmentIndex: 3, Err: errors.New("exit status 1")},
			wantIndex: 3,
			wantOK:    true,
		},
		{
			name:      "tagged transcription",
			err:       &TranscriptionError{SegmentIndex: 2, Cause: CauseTimeout, Err: context.DeadlineExceeded},
			wantIndex: 2,
			wantOK:    true,
		},
		{
			name:   "untagged transcription",
			err:    NewTranscriptionError(CauseServiceError, errors.New("502")),
			wantOK: false,
		},
		{
			name:      "wrapped",
			err:       fmt.Errorf("job x: %w", &AudioExtractionError{SegmentIndex: 1, Err: errors.New("x")}),
			wantIndex: 1,
			wantOK:    true,
		},
		{
			name:   "segmentation has no index",
			err:    &SegmentationError{Source: "/in.mp4", Err: errors.New("no audio")},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, ok := SegmentIndexOf(tt.err)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantIndex, idx)
			}
		})
	}
}

func TestErrors_Unwrap(t *testing.T) {
	cause := errors.New("root cause")

	errs := []error{
		&SegmentationError{Err: cause},
		&AudioExtractionError{Err: cause},
		&TranscriptionError{Err: cause},
		&PersistenceError{Err: cause},
		&WorkspaceError{Err: cause},
	}
	for _, err := range errs {
		assert.ErrorIs(t, err, cause, "%T", err)
	}
}

func TestErrors_Messages(t *testing.T) {
	seg := &SegmentationError{Source: "/in.mp4", Output: "Invalid data found", Err: errors.New("exit status 1")}
	assert.Equal(t, "segment /in.mp4: exit status 1: Invalid data found", seg.Error())

	te := &TranscriptionError{SegmentIndex: 2, Cause: CauseRateLimited, Err: errors.New("http 429")}
	assert.Equal(t, "transcribe segment 2 (rate_limited): http 429", te.Error())

	pe := &PersistenceError{TranscriptID: 7, Err: ErrNotFound}
	assert.Equal(t, "persist transcript 7: resource not found", pe.Error())
}
