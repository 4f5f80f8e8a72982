package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bnema/scribe/internal/domain"
)

const selectAnnotation = `SELECT id, transcript_id, text, ticker, subsectors, datatitle, sentiment, rating, created_at FROM annotations`

// CreateAnnotation inserts only when the transcript exists, so a missing
// transcript surfaces as domain.ErrNotFound rather than a constraint error.
func (s *Store) CreateAnnotation(ctx context.Context, transcriptID int64, in domain.AnnotationInput) (*domain.Annotation, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO annotations (transcript_id, text, ticker, subsectors, datatitle, sentiment, rating, created_at)
		 SELECT id, ?, ?, ?, ?, ?, ?, ? FROM transcripts WHERE id = ?`,
		in.Text, in.Ticker, in.Subsectors, in.DataTitle, in.Sentiment, ratingArg(in.Rating), time.Now().UTC(), transcriptID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert annotation: %w", err)
	}
	if err := requireRow(res, transcriptID); err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("read annotation id: %w", err)
	}
	return s.getAnnotation(ctx, id)
}

func (s *Store) ListAnnotations(ctx context.Context, transcriptID int64) ([]*domain.Annotation, error) {
	rows, err := s.db.QueryContext(ctx, selectAnnotation+` WHERE transcript_id = ? ORDER BY created_at ASC, id ASC`, transcriptID)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	return result, nil
}

// UpdateAnnotation replaces the editable fields and restamps created_at.
func (s *Store) UpdateAnnotation(ctx context.Context, id int64, in domain.AnnotationInput) (*domain.Annotation, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE annotations SET text = ?, ticker = ?, subsectors = ?, datatitle = ?, sentiment = ?, rating = ?, created_at = ?
		 WHERE id = ?`,
		in.Text, in.Ticker, in.Subsectors, in.DataTitle, in.Sentiment, ratingArg(in.Rating), time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update annotation %d: %w", id, err)
	}
	if err := requireRow(res, id); err != nil {
		return nil, err
	}
	return s.getAnnotation(ctx, id)
}

func (s *Store) DeleteAnnotation(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM annotations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete annotation %d: %w", id, err)
	}
	return requireRow(res, id)
}

func (s *Store) getAnnotation(ctx context.Context, id int64) (*domain.Annotation, error) {
	a, err := scanAnnotation(s.db.QueryRowContext(ctx, selectAnnotation+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get annotation %d: %w", id, err)
	}
	return a, nil
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
