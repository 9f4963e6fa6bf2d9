// Package workdata persists the idempotent mapping from internal job id to
// external (ASR-side) id, so that a redelivered input message can skip a
// repeat upload.
package workdata

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/batchtx/transcriber/internal/apperr"
)

// WorkData is the persistent row keyed by job id.
type WorkData struct {
	ID         string
	ExternalID string
	FileName   string
	BaseDir    string
	TryCount   int
	Created    time.Time
	Updated    time.Time
	ErrorMsg   string
	UploadTime *time.Time
}

// Store is the persistence contract consumed by the ASR worker. It is
// satisfied by *PGStore in production and by an in-memory fake in tests.
type Store interface {
	GetOrCreate(ctx context.Context, jobID, file, baseDir string) (*WorkData, error)
	SetExternalID(ctx context.Context, jobID, externalID string) error
	Get(ctx context.Context, jobID string) (*WorkData, error)
	RecordError(ctx context.Context, jobID, errMsg string) error
}

// DefaultPoolSize is the default bound on concurrent database connections.
const DefaultPoolSize = 8

// PGStore is the Postgres-backed Store implementation.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPool opens a connection pool against databaseURL, bounded to
// DefaultPoolSize unless overridden by the URL's own pool_max_conns.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, apperr.Invalid("parse database url", err)
	}
	// ParseConfig always fills MaxConns with its own default, so the URL
	// itself is checked for an explicit pool_max_conns.
	if !strings.Contains(databaseURL, "pool_max_conns") {
		cfg.MaxConns = DefaultPoolSize
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, apperr.Unavailable("open database pool", err)
	}
	return pool, nil
}

// NewPGStore wraps an already-open pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// GetOrCreate returns the existing WorkData row for jobID, or inserts and
// returns a fresh one with an empty external id. Runs inside a single
// transaction so that concurrent redeliveries never race to insert twice.
func (s *PGStore) GetOrCreate(ctx context.Context, jobID, file, baseDir string) (*WorkData, error) {
	var wd *WorkData

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		existing, err := scanWorkData(tx.QueryRow(ctx, selectByID, jobID))
		if err == nil {
			wd = existing
			return nil
		}
		if err != pgx.ErrNoRows {
			return apperr.Unavailable("select work_data", err)
		}

		inserted, err := scanWorkData(tx.QueryRow(ctx, insertNew, jobID, file, baseDir))
		if err != nil {
			return apperr.Unavailable("insert work_data", err)
		}
		wd = inserted
		return nil
	})
	if err != nil {
		return nil, err
	}
	return wd, nil
}

// SetExternalID unconditionally updates the external id column once an
// upload succeeds; the external id is stable thereafter.
func (s *PGStore) SetExternalID(ctx context.Context, jobID, externalID string) error {
	_, err := s.pool.Exec(ctx, updateExternalID, jobID, externalID)
	if err != nil {
		return apperr.Unavailable("update work_data external id", err)
	}
	return nil
}

// Get reads the current row for jobID, used for the best-effort external
// id recovery on the retry-ceiling path.
func (s *PGStore) Get(ctx context.Context, jobID string) (*WorkData, error) {
	wd, err := scanWorkData(s.pool.QueryRow(ctx, selectByID, jobID))
	if err == pgx.ErrNoRows {
		return nil, apperr.NotFound("work_data")
	}
	if err != nil {
		return nil, apperr.Unavailable("select work_data", err)
	}
	return wd, nil
}

// RecordError persists the last error message and bumps try_count, purely
// for operator visibility; it does not change control flow.
func (s *PGStore) RecordError(ctx context.Context, jobID, errMsg string) error {
	_, err := s.pool.Exec(ctx, updateError, jobID, errMsg)
	if err != nil {
		return apperr.Unavailable("update work_data error", err)
	}
	return nil
}

const (
	selectByID = `
SELECT id, external_id, file_name, base_dir, try_count, created, updated, error_msg, upload_time
FROM work_data WHERE id = $1`

	insertNew = `
INSERT INTO work_data (id, external_id, file_name, base_dir, try_count, created, updated, error_msg)
VALUES ($1, '', $2, $3, 1, now(), now(), '')
RETURNING id, external_id, file_name, base_dir, try_count, created, updated, error_msg, upload_time`

	updateExternalID = `
UPDATE work_data SET external_id = $2, upload_time = now(), updated = now() WHERE id = $1`

	updateError = `
UPDATE work_data SET error_msg = $2, try_count = try_count + 1, updated = now() WHERE id = $1`
)

func scanWorkData(row pgx.Row) (*WorkData, error) {
	var wd WorkData
	err := row.Scan(&wd.ID, &wd.ExternalID, &wd.FileName, &wd.BaseDir, &wd.TryCount,
		&wd.Created, &wd.Updated, &wd.ErrorMsg, &wd.UploadTime)
	if err != nil {
		return nil, err
	}
	return &wd, nil
}
