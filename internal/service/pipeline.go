package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	"github.com/bnema/scribe/internal/domain"
	"github.com/bnema/scribe/internal/infrastructure/logger"
	"github.com/bnema/scribe/internal/port"
)

const (
	DefaultSegmentSeconds = 300
	saveTimeout           = 30 * time.Second
)

type PipelineConfig struct {
	SegmentSeconds int
	// MaxParallel caps concurrently running segment workers per job. Zero
	// means one worker per segment.
	MaxParallel int
}

// Request is what intake hands over for one uploaded file. The pipeline takes
// ownership of SourcePath and removes it before returning.
type Request struct {
	SourcePath string
	Name       string
	Consultant *domain.Consultant
	JobID      string
}

type Pipeline struct {
	segmenter  port.Segmenter
	worker     *SegmentWorker
	store      port.TranscriptStore
	workspaces *Workspaces
	events     EventPublisher
	cfg        PipelineConfig

	mu      sync.Mutex
	pending map[int64]*domain.PersistenceError
}

func NewPipeline(
	segmenter port.Segmenter,
	worker *SegmentWorker,
	store port.TranscriptStore,
	workspaces *Workspaces,
	events EventPublisher,
	cfg PipelineConfig,
) *Pipeline {
	if cfg.SegmentSeconds <= 0 {
		cfg.SegmentSeconds = DefaultSegmentSeconds
	}
	if events == nil {
		events = nopPublisher{}
	}
	return &Pipeline{
		segmenter:  segmenter,
		worker:     worker,
		store:      store,
		workspaces: workspaces,
		events:     events,
		cfg:        cfg,
		pending:    make(map[int64]*domain.PersistenceError),
	}
}

// Transcribe runs one upload end to end: placeholder, segmentation, concurrent
// transcription, assembly and a single content update. The source file is
// removed on every exit path.
func (p *Pipeline) Transcribe(ctx context.Context, req Request) (*domain.Result, error) {
	defer removeSource(req.SourcePath)

	jobLog := logger.Job(logger.Info, req.JobID)
	job := domain.NewTranscriptJob(req.JobID, req.SourcePath)

	digest, err := fileDigest(req.SourcePath)
	if err != nil {
		logger.Job(logger.Warn, req.JobID).Printf("digest source: %v", err)
	}
	job.SourceDigest = digest

	id, err := p.store.CreatePlaceholder(ctx, domain.Placeholder{
		Name:         req.Name,
		Consultant:   req.Consultant,
		SourceDigest: digest,
	})
	if err != nil {
		pe := &domain.PersistenceError{Err: fmt.Errorf("create transcript placeholder: %w", err)}
		p.fail(job, pe)
		return nil, pe
	}
	job.TranscriptID = id
	jobLog.Printf("accepted %s as transcript %d", logger.SanitizeForLog(req.Name), id)

	text, err := p.Run(ctx, job)
	if err != nil {
		return nil, err
	}

	p.advance(jobLog, job, domain.StagePersisting)
	if err := p.save(ctx, id, text); err != nil {
		pe := &domain.PersistenceError{TranscriptID: id, Transcript: text, Err: err}
		p.keepPending(pe)
		p.fail(job, pe)
		return nil, pe
	}
	p.advance(jobLog, job, domain.StageCompleted)

	return &domain.Result{ID: id, Transcript: text}, nil
}

// Run segments job.SourcePath inside a fresh workspace, transcribes every
// segment concurrently and returns the assembled transcript. The first
// segment failure cancels the remaining workers and is returned as is.
func (p *Pipeline) Run(ctx context.Context, job *domain.TranscriptJob) (text string, err error) {
	jobLog := logger.Job(logger.Info, job.ID)
	defer func() {
		if err != nil {
			p.fail(job, err)
		}
	}()

	ws, err := p.workspaces.NewWorkspace(job.ID)
	if err != nil {
		return "", err
	}
	defer func() {
		if relErr := ws.Release(); relErr != nil {
			logger.Job(logger.Warn, job.ID).Printf("%v", relErr)
		}
	}()

	p.advance(jobLog, job, domain.StageSegmenting)
	paths, err := p.segmenter.Segment(ctx, job.SourcePath, ws.SegmentDir, p.cfg.SegmentSeconds)
	if err != nil {
		return "", err
	}
	job.SetSegments(paths, ws.AudioPath)
	jobLog.Printf("split into %d segment(s)", len(paths))

	results, err := p.dispatch(ctx, jobLog, job)
	if err != nil {
		return "", err
	}

	p.advance(jobLog, job, domain.StageAssembling)
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
		job.Segments[i].Text = r.Text
		job.Segments[i].Status = domain.SegmentStatusDone
	}
	return domain.Assemble(texts), nil
}

// dispatch runs one worker per segment and waits for all of them or for the
// first failure. Results are indexed by segment, not by completion order.
func (p *Pipeline) dispatch(ctx context.Context, jobLog *log.Logger, job *domain.TranscriptJob) ([]domain.SegmentResult, error) {
	p.advance(jobLog, job, domain.StageDispatching)

	g, gctx := errgroup.WithContext(ctx)
	if p.cfg.MaxParallel > 0 {
		g.SetLimit(p.cfg.MaxParallel)
	}

	results := make([]domain.SegmentResult, len(job.Segments))
	for _, seg := range job.Segments {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := p.worker.Process(gctx, job.ID, seg)
			results[seg.Index] = res
			return res.Err
		})
	}

	p.advance(jobLog, job, domain.StageJoining)
	if err := g.Wait(); err != nil {
		for i := range results {
			if results[i].Err != nil {
				job.Segments[i].Status = domain.SegmentStatusFailed
			}
		}
		return nil, err
	}
	return results, nil
}

// RetrySave persists a transcript that was assembled but not saved, without
// transcribing again.
func (p *Pipeline) RetrySave(ctx context.Context, pe *domain.PersistenceError) (*domain.Result, error) {
	if pe == nil || pe.TranscriptID == 0 {
		return nil, errors.New("nothing to save")
	}
	if err := p.save(ctx, pe.TranscriptID, pe.Transcript); err != nil {
		next := &domain.PersistenceError{TranscriptID: pe.TranscriptID, Transcript: pe.Transcript, Err: err}
		p.keepPending(next)
		return nil, next
	}

	p.mu.Lock()
	delete(p.pending, pe.TranscriptID)
	p.mu.Unlock()

	logger.Info.Printf("saved transcript %d on retry", pe.TranscriptID)
	return &domain.Result{ID: pe.TranscriptID, Transcript: pe.Transcript}, nil
}

// PendingSave returns the unsaved transcript for id, if a save failed.
func (p *Pipeline) PendingSave(id int64) (*domain.PersistenceError, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pe, ok := p.pending[id]
	return pe, ok
}

func (p *Pipeline) keepPending(pe *domain.PersistenceError) {
	p.mu.Lock()
	p.pending[pe.TranscriptID] = pe
	p.mu.Unlock()
}

// save writes the content even if the caller went away after the work was
// done.
func (p *Pipeline) save(ctx context.Context, id int64, text string) error {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	return p.store.SetContent(saveCtx, id, text)
}

func (p *Pipeline) advance(jobLog *log.Logger, job *domain.TranscriptJob, next domain.Stage) {
	if err := job.Advance(next); err != nil {
		logger.Error.Printf("job %s: %v", logger.SanitizeForLog(job.ID), err)
		return
	}
	jobLog.Printf("stage %s", next)
	p.events.Publish(job.ID, Event{
		Type:         EventStage,
		JobID:        job.ID,
		Stage:        next,
		Status:       job.Status(),
		Segment:      -1,
		TranscriptID: job.TranscriptID,
	})
}

func (p *Pipeline) fail(job *domain.TranscriptJob, err error) {
	if job.Stage.IsTerminal() {
		return
	}
	job.Fail(err)
	logger.Job(logger.Error, job.ID).Printf("failed: %v", err)
	ev := Event{
		Type:         EventStage,
		JobID:        job.ID,
		Stage:        domain.StageFailed,
		Status:       domain.JobStatusFailed,
		Segment:      -1,
		TranscriptID: job.TranscriptID,
		Message:      err.Error(),
	}
	if idx, ok := domain.SegmentIndexOf(err); ok {
		ev.Segment = idx
	}
	p.events.Publish(job.ID, ev)
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close() //nolint:errcheck

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func removeSource(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn.Printf("remove upload %s: %v", logger.SanitizeForLog(path), err)
	}
}
