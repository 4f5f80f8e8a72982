package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/scribe/internal/domain"
)

func newSegment(t *testing.T, index int, content string) domain.SegmentDescriptor {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "segment.mkv")
	require.NoError(t, os.WriteFile(src, []byte(content), 0o600))
	return domain.SegmentDescriptor{
		Index:      index,
		SourcePath: src,
		AudioPath:  filepath.Join(dir, "segment.wav"),
		Status:     domain.SegmentStatusPending,
	}
}

func TestSegmentWorker_Process(t *testing.T) {
	events := &recordingPublisher{}
	tr := &fakeTranscriber{behaviors: map[string]transcribeBehavior{
		"seg": {text: "Dr. Smith arrived at 3.30 today. He said hello. Then left!"},
	}}
	w := NewSegmentWorker(newFakeExtractor(), tr, events)

	res := w.Process(context.Background(), "job", newSegment(t, 4, "seg"))

	require.NoError(t, res.Err)
	assert.Equal(t, 4, res.Index)
	assert.Equal(t, "Dr. Smith arrived at 3.30 today.\nHe said hello.\nThen left!", res.Text)

	var statuses []domain.SegmentStatus
	for _, e := range events.events {
		assert.Equal(t, EventSegment, e.Type)
		assert.Equal(t, 4, e.Segment)
		statuses = append(statuses, e.SegmentStatus)
	}
	assert.Equal(t, []domain.SegmentStatus{
		domain.SegmentStatusExtracting,
		domain.SegmentStatusTranscribing,
		domain.SegmentStatusDone,
	}, statuses)
}

func TestSegmentWorker_BlankTranscript(t *testing.T) {
	tr := &fakeTranscriber{behaviors: map[string]transcribeBehavior{"quiet": {text: ""}}}
	w := NewSegmentWorker(newFakeExtractor(), tr, nil)

	res := w.Process(context.Background(), "job", newSegment(t, 0, "quiet"))

	require.NoError(t, res.Err)
	assert.Empty(t, res.Text)
}

func TestSegmentWorker_ExtractionErrorTagged(t *testing.T) {
	ext := newFakeExtractor()
	ext.failIndex = 3
	tr := &fakeTranscriber{echo: true}
	events := &recordingPublisher{}
	w := NewSegmentWorker(ext, tr, events)

	res := w.Process(context.Background(), "job", newSegment(t, 3, "x"))

	var ae *domain.AudioExtractionError
	require.ErrorAs(t, res.Err, &ae)
	assert.Equal(t, 3, ae.SegmentIndex)
	assert.EqualValues(t, 0, tr.calls.Load())
	last := events.events[len(events.events)-1]
	assert.Equal(t, domain.SegmentStatusFailed, last.SegmentStatus)
	assert.NotEmpty(t, last.Message)
}

type plainErrExtractor struct{}

func (plainErrExtractor) Extract(context.Context, int, string, string) error {
	return errors.New("boom")
}

func TestSegmentWorker_UntypedExtractionErrorWrapped(t *testing.T) {
	w := NewSegmentWorker(plainErrExtractor{}, &fakeTranscriber{}, nil)

	res := w.Process(context.Background(), "job", newSegment(t, 2, "x"))

	var ae *domain.AudioExtractionError
	require.ErrorAs(t, res.Err, &ae)
	assert.Equal(t, 2, ae.SegmentIndex)
}

func TestSegmentWorker_TranscriptionErrorTagged(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCause domain.TranscriptionCause
	}{
		{
			name:      "typed error keeps cause",
			err:       domain.NewTranscriptionError(domain.CauseMalformedResponse, errors.New("no text")),
			wantCause: domain.CauseMalformedResponse,
		},
		{
			name:      "plain error becomes service error",
			err:       errors.New("connection reset"),
			wantCause: domain.CauseServiceError,
		},
		{
			name:      "deadline becomes timeout",
			err:       context.DeadlineExceeded,
			wantCause: domain.CauseTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTranscriber{behaviors: map[string]transcribeBehavior{"x": {err: tt.err}}}
			w := NewSegmentWorker(newFakeExtractor(), tr, nil)

			res := w.Process(context.Background(), "job", newSegment(t, 5, "x"))

			var te *domain.TranscriptionError
			require.ErrorAs(t, res.Err, &te)
			assert.Equal(t, 5, te.SegmentIndex)
			assert.Equal(t, tt.wantCause, te.Cause)
		})
	}
}

func TestSegmentWorker_MissingAudioAfterExtract(t *testing.T) {
	w := NewSegmentWorker(noopExtractor{}, &fakeTranscriber{echo: true}, nil)

	res := w.Process(context.Background(), "job", newSegment(t, 1, "x"))

	var ae *domain.AudioExtractionError
	require.ErrorAs(t, res.Err, &ae)
	assert.Equal(t, 1, ae.SegmentIndex)
}

type noopExtractor struct{}

func (noopExtractor) Extract(context.Context, int, string, string) error { return nil }
