// Package storage persists repository records, one document per tracked
// repository, in Postgres or in memory.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/samber/lo"

	"github.com/0x0BSoD/repofeed/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS repositories (
    id          UUID PRIMARY KEY,
    owner       TEXT NOT NULL,
    repo        TEXT NOT NULL,
    url         TEXT NOT NULL UNIQUE,
    status      TEXT NOT NULL,
    feeds       JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at  TIMESTAMPTZ NOT NULL,
    last_update TIMESTAMPTZ,
    error       TEXT,
    UNIQUE (owner, repo)
);
CREATE INDEX IF NOT EXISTS repositories_status_idx ON repositories (status, last_update);
`

const columns = `id, owner, repo, url, status, feeds, created_at, last_update, error`

const uniqueViolation = "23505"

type RepositoryStorage struct {
	db *sqlx.DB
}

func NewRepositoryStorage(db *sqlx.DB) *RepositoryStorage {
	return &RepositoryStorage{db: db}
}

// Ensure creates the schema if it does not exist yet.
func (s *RepositoryStorage) Ensure(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *RepositoryStorage) Create(ctx context.Context, id model.Identity, now time.Time) (model.Repository, error) {
	var row dbRepository
	err := s.db.GetContext(ctx, &row,
		`INSERT INTO repositories (id, owner, repo, url, status, feeds, created_at, last_update)
		VALUES ($1, $2, $3, $4, $5, '{}'::jsonb, $6, $6)
		RETURNING `+columns,
		uuid.NewString(), id.Owner, id.Repo, id.URL(), string(model.StatusPending), now.UTC(),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return model.Repository{}, fmt.Errorf("%w: %s", model.ErrAlreadyExists, id)
		}
		return model.Repository{}, err
	}
	return row.toModel()
}

func (s *RepositoryStorage) ByID(ctx context.Context, id string) (model.Repository, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Repository{}, fmt.Errorf("%w: %q", model.ErrRecordNotFound, id)
	}
	return s.one(ctx, `SELECT `+columns+` FROM repositories WHERE id = $1`, id)
}

func (s *RepositoryStorage) ByIdentity(ctx context.Context, id model.Identity) (model.Repository, error) {
	return s.one(ctx, `SELECT `+columns+` FROM repositories WHERE owner = $1 AND repo = $2`, id.Owner, id.Repo)
}

func (s *RepositoryStorage) ByURL(ctx context.Context, url string) (model.Repository, error) {
	return s.one(ctx, `SELECT `+columns+` FROM repositories WHERE url = $1`, url)
}

func (s *RepositoryStorage) All(ctx context.Context) ([]model.Repository, error) {
	return s.many(ctx, `SELECT `+columns+` FROM repositories ORDER BY created_at DESC`)
}

func (s *RepositoryStorage) ByStatus(ctx context.Context, status model.Status) ([]model.Repository, error) {
	return s.many(ctx, `SELECT `+columns+` FROM repositories WHERE status = $1 ORDER BY created_at ASC`, string(status))
}

// Due returns repositories that should be (re)generated: pending and errored
// ones, ready ones last updated before staleBefore and generating ones whose
// lease expired before leaseBefore.
func (s *RepositoryStorage) Due(ctx context.Context, staleBefore, leaseBefore time.Time) ([]model.Repository, error) {
	return s.many(ctx, `SELECT `+columns+` FROM repositories
		WHERE status IN ('pending', 'error')
		   OR (status = 'ready' AND (last_update IS NULL OR last_update < $1))
		   OR (status = 'generating' AND (last_update IS NULL OR last_update < $2))
		ORDER BY last_update ASC NULLS FIRST, created_at ASC`,
		staleBefore.UTC(), leaseBefore.UTC(),
	)
}

// StartGeneration moves the record to generating unless another generation
// holds it. A generating record whose last update is older than leaseBefore
// is taken over.
func (s *RepositoryStorage) StartGeneration(ctx context.Context, id string, now, leaseBefore time.Time) (model.Repository, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Repository{}, fmt.Errorf("%w: %q", model.ErrRecordNotFound, id)
	}

	var row dbRepository
	err := s.db.GetContext(ctx, &row,
		`UPDATE repositories SET status = $2, last_update = $3
		WHERE id = $1 AND (status <> $2 OR last_update IS NULL OR last_update < $4)
		RETURNING `+columns,
		id, string(model.StatusGenerating), now.UTC(), leaseBefore.UTC(),
	)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM repositories WHERE id = $1)`, id); err != nil {
			return model.Repository{}, err
		}
		if !exists {
			return model.Repository{}, fmt.Errorf("%w: %q", model.ErrRecordNotFound, id)
		}
		return model.Repository{}, fmt.Errorf("%w: %q", model.ErrGenerationInProgress, id)
	}
	if err != nil {
		return model.Repository{}, err
	}
	return row.toModel()
}

func (s *RepositoryStorage) CompleteGeneration(ctx context.Context, id string, feeds model.Feeds, now time.Time) (model.Repository, error) {
	doc, err := json.Marshal(feeds)
	if err != nil {
		return model.Repository{}, err
	}
	return s.one(ctx,
		`UPDATE repositories SET status = $2, feeds = $3::jsonb, last_update = $4, error = NULL
		WHERE id = $1
		RETURNING `+columns,
		id, string(model.StatusReady), string(doc), now.UTC(),
	)
}

func (s *RepositoryStorage) FailGeneration(ctx context.Context, id, message string, now time.Time) (model.Repository, error) {
	return s.one(ctx,
		`UPDATE repositories SET status = $2, error = $3, last_update = $4
		WHERE id = $1
		RETURNING `+columns,
		id, string(model.StatusError), message, now.UTC(),
	)
}

// SetStatus overwrites the status. The message is kept only for the error
// status.
func (s *RepositoryStorage) SetStatus(ctx context.Context, id string, status model.Status, message string, now time.Time) (model.Repository, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Repository{}, fmt.Errorf("%w: %q", model.ErrRecordNotFound, id)
	}
	return s.one(ctx,
		`UPDATE repositories SET status = $2, error = $3, last_update = $4
		WHERE id = $1
		RETURNING `+columns,
		id, string(status), errorMessage(status, message), now.UTC(),
	)
}

func errorMessage(status model.Status, message string) sql.NullString {
	if status != model.StatusError {
		return sql.NullString{}
	}
	return sql.NullString{String: message, Valid: true}
}

func (s *RepositoryStorage) one(ctx context.Context, query string, args ...any) (model.Repository, error) {
	var row dbRepository
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Repository{}, model.ErrRecordNotFound
		}
		return model.Repository{}, err
	}
	return row.toModel()
}

func (s *RepositoryStorage) many(ctx context.Context, query string, args ...any) ([]model.Repository, error) {
	var rows []dbRepository
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	out := make([]model.Repository, 0, len(rows))
	for _, row := range rows {
		r, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

type dbRepository struct {
	ID         string         `db:"id"`
	Owner      string         `db:"owner"`
	Repo       string         `db:"repo"`
	URL        string         `db:"url"`
	Status     string         `db:"status"`
	Feeds      []byte         `db:"feeds"`
	CreatedAt  time.Time      `db:"created_at"`
	LastUpdate sql.NullTime   `db:"last_update"`
	Error      sql.NullString `db:"error"`
}

func (r dbRepository) toModel() (model.Repository, error) {
	var feeds model.Feeds
	if len(r.Feeds) > 0 {
		if err := json.Unmarshal(r.Feeds, &feeds); err != nil {
			return model.Repository{}, fmt.Errorf("decode feeds of %s: %w", r.ID, err)
		}
	}

	var lastUpdate *time.Time
	if r.LastUpdate.Valid {
		lastUpdate = lo.ToPtr(r.LastUpdate.Time)
	}

	return model.Repository{
		ID:         r.ID,
		Owner:      r.Owner,
		Repo:       r.Repo,
		URL:        r.URL,
		Status:     model.Status(r.Status),
		Feeds:      feeds,
		CreatedAt:  r.CreatedAt,
		LastUpdate: lastUpdate,
		Error:      r.Error.String,
	}, nil
}
