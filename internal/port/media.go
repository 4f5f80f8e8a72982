package port

import (
	"context"

	"github.com/bnema/scribe/internal/domain"
)

type MediaProber interface {
	Probe(ctx context.Context, path string) (*domain.ProbeResult, error)
}

// Segmenter splits source into consecutive files of segmentSeconds inside dir,
// returned in temporal order.
type Segmenter interface {
	Segment(ctx context.Context, sourcePath, dir string, segmentSeconds int) ([]string, error)
}

type AudioExtractor interface {
	Extract(ctx context.Context, index int, segmentPath, audioPath string) error
}
