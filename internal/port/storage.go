package port

import (
	"context"

	"github.com/bnema/scribe/internal/domain"
)

type TranscriptStore interface {
	CreatePlaceholder(ctx context.Context, p domain.Placeholder) (int64, error)
	SetContent(ctx context.Context, id int64, content string) error
	// Create stores a transcript whose text is already known and marks it
	// complete.
	Create(ctx context.Context, p domain.Placeholder, content string) (*domain.TranscriptRecord, error)
	UpdateMetadata(ctx context.Context, id int64, name string, c *domain.Consultant) error
	Get(ctx context.Context, id int64) (*domain.TranscriptRecord, error)
	List(ctx context.Context) ([]*domain.TranscriptRecord, error)
	Delete(ctx context.Context, id int64) error
	Close() error
}

// AnnotationStore returns domain.ErrNotFound when the transcript or
// annotation addressed does not exist.
type AnnotationStore interface {
	CreateAnnotation(ctx context.Context, transcriptID int64, in domain.AnnotationInput) (*domain.Annotation, error)
	ListAnnotations(ctx context.Context, transcriptID int64) ([]*domain.Annotation, error)
	UpdateAnnotation(ctx context.Context, id int64, in domain.AnnotationInput) (*domain.Annotation, error)
	DeleteAnnotation(ctx context.Context, id int64) error
}

// Store is what a database backend provides.
type Store interface {
	TranscriptStore
	AnnotationStore
}
