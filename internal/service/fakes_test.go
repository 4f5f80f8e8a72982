package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bnema/scribe/internal/domain"
)

// fakeSegmenter writes one file per entry of contents; each file holds its
// content string so later stages can tell segments apart.
// With perSource set, it instead splits into perSource files named after the
// source content.
type fakeSegmenter struct {
	contents  []string
	perSource int
	err       error
	calls     atomic.Int32
}

func (f *fakeSegmenter) Segment(_ context.Context, source string, dir string, _ int) ([]string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	contents := f.contents
	if f.perSource > 0 {
		data, err := os.ReadFile(source)
		if err != nil {
			return nil, err
		}
		contents = make([]string, f.perSource)
		for i := range contents {
			contents[i] = fmt.Sprintf("%s:%d", data, i)
		}
	}
	paths := make([]string, len(contents))
	for i, c := range contents {
		paths[i] = filepath.Join(dir, fmt.Sprintf("segment_%05d.mkv", i))
		if err := os.WriteFile(paths[i], []byte(c), 0o600); err != nil {
			return nil, err
		}
	}
	return paths, nil
}

// fakeExtractor copies the segment bytes to the audio path.
type fakeExtractor struct {
	failIndex int
	calls     atomic.Int32
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{failIndex: -1}
}

func (f *fakeExtractor) Extract(_ context.Context, index int, segmentPath, audioPath string) error {
	f.calls.Add(1)
	if index == f.failIndex {
		return &domain.AudioExtractionError{SegmentIndex: index, Output: "Stream map '0:a:0' matches no streams.", Err: fmt.Errorf("exit status 1")}
	}
	data, err := os.ReadFile(segmentPath)
	if err != nil {
		return err
	}
	return os.WriteFile(audioPath, data, 0o600)
}

type transcribeBehavior struct {
	text  string
	delay time.Duration
	err   error
	// block waits for cancellation instead of answering.
	block bool
}

// fakeTranscriber answers according to the audio content. Unknown audio is
// echoed back as "said <content>." when echo is set.
type fakeTranscriber struct {
	behaviors map[string]transcribeBehavior
	echo      bool

	calls     atomic.Int32
	inFlight  atomic.Int32
	maxFlight atomic.Int32
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio io.Reader, _ string) (string, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxFlight.Load()
		if n <= m || f.maxFlight.CompareAndSwap(m, n) {
			break
		}
	}

	data, err := io.ReadAll(audio)
	if err != nil {
		return "", err
	}
	b, ok := f.behaviors[string(data)]
	if !ok {
		if !f.echo {
			return "", fmt.Errorf("unexpected audio %q", data)
		}
		b = transcribeBehavior{text: "said " + string(data) + ".", delay: time.Duration(len(data)%4) * 5 * time.Millisecond}
	}

	if b.block {
		<-ctx.Done()
		return "", domain.NewTranscriptionError(domain.CauseServiceError, ctx.Err())
	}
	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return "", domain.NewTranscriptionError(domain.CauseServiceError, ctx.Err())
		}
	}
	if b.err != nil {
		return "", b.err
	}
	return b.text, nil
}

// memStore is an in-memory transcript store that counts content updates.
type memStore struct {
	mu      sync.Mutex
	nextID  int64
	records map[int64]*domain.TranscriptRecord
	sets    map[int64]int
}

func newMemStore() *memStore {
	return &memStore{records: make(map[int64]*domain.TranscriptRecord), sets: make(map[int64]int)}
}

func (s *memStore) CreatePlaceholder(_ context.Context, p domain.Placeholder) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.records[s.nextID] = &domain.TranscriptRecord{
		ID:           s.nextID,
		Name:         p.Name,
		Consultant:   p.Consultant,
		SourceDigest: p.SourceDigest,
		CreatedAt:    time.Now(),
	}
	return s.nextID, nil
}

func (s *memStore) SetContent(_ context.Context, id int64, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now()
	rec.Content = content
	rec.CompletedAt = &now
	s.sets[id]++
	return nil
}

func (s *memStore) Create(ctx context.Context, p domain.Placeholder, content string) (*domain.TranscriptRecord, error) {
	id, err := s.CreatePlaceholder(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := s.SetContent(ctx, id, content); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *memStore) UpdateMetadata(_ context.Context, id int64, name string, c *domain.Consultant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	rec.Name = name
	rec.Consultant = c
	return nil
}

func (s *memStore) Get(_ context.Context, id int64) (*domain.TranscriptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *memStore) List(context.Context) ([]*domain.TranscriptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.TranscriptRecord
	for _, rec := range s.records {
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) setCount(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets[id]
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingPublisher) Publish(_ string, e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingPublisher) stages() []domain.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Stage
	for _, e := range r.events {
		if e.Type == EventStage {
			out = append(out, e.Stage)
		}
	}
	return out
}

func writeSource(t interface {
	TempDir() string
	Fatalf(string, ...any)
}, content string) string {
	path := filepath.Join(t.TempDir(), "upload.mp4")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}
