package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"

	"github.com/bnema/scribe/internal/domain"
	"github.com/bnema/scribe/internal/port"
)

//go:embed migrations/*.sql
var migrations embed.FS

const dbFile = "scribe.db"

type Store struct {
	db *sql.DB
}

var hookOnce sync.Once

func registerHook() {
	hookOnce.Do(func() {
		sqlite.RegisterConnectionHook(func(conn sqlite.ExecQuerierContext, dsn string) error {
			pragmas := []string{
				"PRAGMA journal_mode = WAL",
				"PRAGMA busy_timeout = 5000",
				"PRAGMA synchronous = NORMAL",
				"PRAGMA foreign_keys = ON",
				"PRAGMA cache_size = -8000", // 8MB
			}
			for _, p := range pragmas {
				if _, err := conn.ExecContext(context.Background(), p, nil); err != nil {
					return fmt.Errorf("execute %s: %w", p, err)
				}
			}
			return nil
		})
	})
}

// NewStore opens (or creates) the transcript database in dataDir and applies
// pending migrations.
func NewStore(dataDir string) (*Store, error) {
	registerHook()

	db, err := sql.Open("sqlite", filepath.Join(dataDir, dbFile))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single connection for SQLite (WAL allows concurrent reads but only one writer)
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) CreatePlaceholder(ctx context.Context, p domain.Placeholder) (int64, error) {
	name, rating := consultantArgs(p.Consultant)

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO transcripts (name, content, consultant_name, consultant_rating, source_digest, created_at)
		 VALUES (?, '', ?, ?, ?, ?)`,
		p.Name, name, rating, p.SourceDigest, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert transcript: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read transcript id: %w", err)
	}
	return id, nil
}

func (s *Store) Create(ctx context.Context, p domain.Placeholder, content string) (*domain.TranscriptRecord, error) {
	name, rating := consultantArgs(p.Consultant)
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO transcripts (name, content, consultant_name, consultant_rating, source_digest, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Name, content, name, rating, p.SourceDigest, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert transcript: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("read transcript id: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *Store) UpdateMetadata(ctx context.Context, id int64, name string, c *domain.Consultant) error {
	consultant, rating := consultantArgs(c)
	res, err := s.db.ExecContext(ctx,
		`UPDATE transcripts SET name = ?, consultant_name = ?, consultant_rating = ? WHERE id = ?`,
		name, consultant, rating, id,
	)
	if err != nil {
		return fmt.Errorf("update transcript %d: %w", id, err)
	}
	return requireRow(res, id)
}

func (s *Store) SetContent(ctx context.Context, id int64, content string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE transcripts SET content = ?, completed_at = ? WHERE id = ?`,
		content, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update transcript %d: %w", id, err)
	}
	return requireRow(res, id)
}

const selectColumns = `SELECT id, name, content, consultant_name, consultant_rating, source_digest, created_at, completed_at FROM transcripts`

func (s *Store) Get(ctx context.Context, id int64) (*domain.TranscriptRecord, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	rec, err := scanRecord(row)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	return result, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transcripts WHERE id = ?`, id)
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
