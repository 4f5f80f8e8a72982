package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bnema/scribe/internal/domain"
	"github.com/bnema/scribe/internal/infrastructure/logger"
	"github.com/bnema/scribe/internal/port"
)

// SegmentWorker turns one segment file into sentence-per-line text. It holds
// no per-job state and is safe for concurrent use.
type SegmentWorker struct {
	extractor   port.AudioExtractor
	transcriber port.Transcriber
	events      EventPublisher
}

func NewSegmentWorker(extractor port.AudioExtractor, transcriber port.Transcriber, events EventPublisher) *SegmentWorker {
	if events == nil {
		events = nopPublisher{}
	}
	return &SegmentWorker{extractor: extractor, transcriber: transcriber, events: events}
}

// Process extracts audio, transcribes it and splits the text into sentences
// joined by newlines. Any error is tagged with seg.Index.
func (w *SegmentWorker) Process(ctx context.Context, jobID string, seg domain.SegmentDescriptor) domain.SegmentResult {
	fail := func(err error) domain.SegmentResult {
		w.publish(jobID, seg.Index, domain.SegmentStatusFailed, err.Error())
		return domain.SegmentResult{Index: seg.Index, Err: err}
	}

	w.publish(jobID, seg.Index, domain.SegmentStatusExtracting, "")
	if err := w.extractor.Extract(ctx, seg.Index, seg.SourcePath, seg.AudioPath); err != nil {
		return fail(tagExtraction(seg.Index, err))
	}

	audio, err := os.Open(seg.AudioPath)
	if err != nil {
		return fail(&domain.AudioExtractionError{SegmentIndex: seg.Index, Err: fmt.Errorf("open audio: %w", err)})
	}
	defer audio.Close() //nolint:errcheck

	w.publish(jobID, seg.Index, domain.SegmentStatusTranscribing, "")
	raw, err := w.transcriber.Transcribe(ctx, audio, filepath.Base(seg.AudioPath))
	if err != nil {
		return fail(tagTranscription(seg.Index, err))
	}

	text := strings.Join(domain.SplitSentences(raw), "\n")
	logger.Debug.Printf("segment %d: %d chars", seg.Index, len(text))
	w.publish(jobID, seg.Index, domain.SegmentStatusDone, "")
	return domain.SegmentResult{Index: seg.Index, Text: text}
}

func (w *SegmentWorker) publish(jobID string, index int, status domain.SegmentStatus, msg string) {
	w.events.Publish(jobID, Event{
		Type:          EventSegment,
		JobID:         jobID,
		Segment:       index,
		SegmentStatus: status,
		Message:       msg,
	})
}

func tagExtraction(index int, err error) error {
	var ae *domain.AudioExtractionError
	if errors.As(err, &ae) {
		ae.SegmentIndex = index
		return err
	}
	return &domain.AudioExtractionError{SegmentIndex: index, Err: err}
}

func tagTranscription(index int, err error) error {
	var te *domain.TranscriptionError
	if errors.As(err, &te) {
		te.SegmentIndex = index
		return err
	}
	cause := domain.CauseServiceError
	if errors.Is(err, context.DeadlineExceeded) {
		cause = domain.CauseTimeout
	}
	return &domain.TranscriptionError{SegmentIndex: index, Cause: cause, Err: err}
}
