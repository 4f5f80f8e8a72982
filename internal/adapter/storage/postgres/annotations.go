package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bnema/scribe/internal/domain"
)

const annotationColumns = `id, transcript_id, text, ticker, subsectors, datatitle, sentiment, rating, created_at`

// CreateAnnotation inserts only when the transcript exists, so a missing
// transcript surfaces as domain.ErrNotFound rather than a constraint error.
func (s *Store) CreateAnnotation(ctx context.Context, transcriptID int64, in domain.AnnotationInput) (*domain.Annotation, error) {
	a, err := scanAnnotation(s.db.QueryRowContext(ctx,
		`INSERT INTO annotations (transcript_id, text, ticker, subsectors, datatitle, sentiment, rating)
		 SELECT id, $1::text, $2::text, $3::text, $4::text, $5::text, $6::integer FROM transcripts WHERE id = $7
		 RETURNING `+annotationColumns,
		in.Text, in.Ticker, in.Subsectors, in.DataTitle, in.Sentiment, ratingArg(in.Rating), transcriptID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("insert annotation: %w", err)
	}
	return a, nil
}

func (s *Store) ListAnnotations(ctx context.Context, transcriptID int64) ([]*domain.Annotation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+annotationColumns+` FROM annotations WHERE transcript_id = $1 ORDER BY created_at ASC, id ASC`, transcriptID)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var result []*domain.Annotation
	for rows.Next() {
		a, err := scanAnnotation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan annotation: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// UpdateAnnotation replaces the editable fields and restamps created_at.
func (s *Store) UpdateAnnotation(ctx context.Context, id int64, in domain.AnnotationInput) (*domain.Annotation, error) {
	a, err := scanAnnotation(s.db.QueryRowContext(ctx,
		`UPDATE annotations SET text = $1, ticker = $2, subsectors = $3, datatitle = $4, sentiment = $5, rating = $6, created_at = now()
		 WHERE id = $7
		 RETURNING `+annotationColumns,
		in.Text, in.Ticker, in.Subsectors, in.DataTitle, in.Sentiment, ratingArg(in.Rating), id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("update annotation %d: %w", id, err)
	}
	return a, nil
}

func (s *Store) DeleteAnnotation(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM annotations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete annotation %d: %w", id, err)
	}
	return requireRow(res, id)
}

func ratingArg(r *int) sql.NullInt64 {
	if r == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*r), Valid: true}
}

func scanAnnotation(row scanner) (*domain.Annotation, error) {
	var (
		a      domain.Annotation
		rating sql.NullInt64
	)
	if err := row.Scan(&a.ID, &a.TranscriptID, &a.Text, &a.Ticker, &a.Subsectors, &a.DataTitle, &a.Sentiment, &rating, &a.CreatedAt); err != nil {
		return nil, err
	}
	if rating.Valid {
		r := int(rating.Int64)
		a.Rating = &r
	}
	return &a, nil
}
