// Package postgres stores transcripts in PostgreSQL. It is selected when
// DATABASE_URL is set.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/bnema/scribe/internal/domain"
	"github.com/bnema/scribe/internal/port"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	maxOpenConns    = 10
	maxIdleConns    = 5
	connMaxLifetime = 30 * time.Minute
)

type Store struct {
	db *sql.DB
}

func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreatePlaceholder(ctx context.Context, p domain.Placeholder) (int64, error) {
	name, rating := consultantArgs(p.Consultant)

	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO transcripts (name, content, consultant_name, consultant_rating, source_digest)
		 VALUES ($1, '', $2, $3, $4) RETURNING id`,
		p.Name, name, rating, p.SourceDigest,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert transcript: %w", err)
	}
	return id, nil
}

func (s *Store) SetContent(ctx context.Context, id int64, content string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE transcripts SET content = $1, completed_at = now() WHERE id = $2`, content, id)
	if err != nil {
		return fmt.Errorf("update transcript %d: %w", id, err)
	}
	return requireRow(res, id)
}

func (s *Store) Create(ctx context.Context, p domain.Placeholder, content string) (*domain.TranscriptRecord, error) {
	name, rating := consultantArgs(p.Consultant)

	rec, err := scanRecord(s.db.QueryRowContext(ctx,
		`INSERT INTO transcripts (name, content, consultant_name, consultant_rating, source_digest, completed_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 RETURNING `+recordColumns,
		p.Name, content, name, rating, p.SourceDigest,
	))
	if err != nil {
		return nil, fmt.Errorf("insert transcript: %w", err)
	}
	return rec, nil
}

func (s *Store) UpdateMetadata(ctx context.Context, id int64, name string, c *domain.Consultant) error {
	consultant, rating := consultantArgs(c)
	res, err := s.db.ExecContext(ctx,
		`UPDATE transcripts SET name = $1, consultant_name = $2, consultant_rating = $3 WHERE id = $4`,
		name, consultant, rating, id)
	if err != nil {
		return fmt.Errorf("update transcript %d: %w", id, err)
	}
	return requireRow(res, id)
}

const (
	recordColumns = `id, name, content, consultant_name, consultant_rating, source_digest, created_at, completed_at`
	selectColumns = `SELECT ` + recordColumns + ` FROM transcripts`
)

func (s *Store) Get(ctx context.Context, id int64) (*domain.TranscriptRecord, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get transcript %d: %w", id, err)
	}
	return rec, nil
}

func (s *Store) List(ctx context.Context) ([]*domain.TranscriptRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var result []*domain.TranscriptRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transcripts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete transcript %d: %w", id, err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("row %d: %w", id, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func consultantArgs(c *domain.Consultant) (sql.NullString, sql.NullFloat64) {
	if c == nil {
		return sql.NullString{}, sql.NullFloat64{}
	}
	name := sql.NullString{String: c.Name, Valid: true}
	if c.Rating == nil {
		return name, sql.NullFloat64{}
	}
	return name, sql.NullFloat64{Float64: *c.Rating, Valid: true}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*domain.TranscriptRecord, error) {
	var (
		rec         domain.TranscriptRecord
		consultant  sql.NullString
		rating      sql.NullFloat64
		completedAt sql.NullTime
	)
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Content, &consultant, &rating, &rec.SourceDigest, &rec.CreatedAt, &completedAt); err != nil {
		return nil, err
	}
	if consultant.Valid {
		rec.Consultant = &domain.Consultant{Name: consultant.String}
		if rating.Valid {
			r := rating.Float64
			rec.Consultant.Rating = &r
		}
	}
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}
	return &rec, nil
}

var _ port.Store = (*Store)(nil)
