// Package pgqueue implements the Postgres-backed queue contract: send,
// read-with-visibility-timeout, delete, and extend-visibility, generic
// over the payload type so the same table backs all three named queues.
package pgqueue

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/batchtx/transcriber/internal/apperr"
)

// Message is one delivery of a payload of type T.
type Message[T any] struct {
	ID      int64
	ReadCt  int
	Payload T
}

// Client is the contract consumed by the consume loop and the worker
// packages. *Queue[T] satisfies it against Postgres; *FakeQueue[T]
// satisfies it in tests.
type Client[T any] interface {
	Send(ctx context.Context, payload T) (int64, error)
	Read(ctx context.Context, visibilityTimeoutSeconds int) (*Message[T], bool, error)
	Delete(ctx context.Context, msgID int64) error
	ExtendVisibility(ctx context.Context, msgID int64, durationSeconds int) error
}

// Queue is a thin, goroutine-safe handle shared by every worker that reads
// or writes the named queue. Construction is cheap enough to call once per
// process and share by pointer.
type Queue[T any] struct {
	pool *pgxpool.Pool
	name string
}

// NewQueue returns a handle for the named queue backed by pool. Queue
// "creation" is idempotent by construction: every named queue shares the
// same already-migrated queue_messages table, partitioned by queue_name.
func NewQueue[T any](pool *pgxpool.Pool, name string) *Queue[T] {
	return &Queue[T]{pool: pool, name: name}
}

var _ Client[struct{}] = (*Queue[struct{}])(nil)

// Send serializes payload and enqueues it, returning the assigned message
// id.
func (q *Queue[T]) Send(ctx context.Context, payload T) (int64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, apperr.Invalid("marshal queue payload", err)
	}

	var id int64
	err = q.pool.QueryRow(ctx, `
INSERT INTO queue_messages (queue_name, payload, visible_at)
VALUES ($1, $2, now())
RETURNING id`, q.name, body).Scan(&id)
	if err != nil {
		return 0, apperr.Unavailable("enqueue message", err)
	}
	return id, nil
}

// Read atomically reserves at most one ready message, making it invisible
// for visibilityTimeoutSeconds, and reports whether one was available.
func (q *Queue[T]) Read(ctx context.Context, visibilityTimeoutSeconds int) (*Message[T], bool, error) {
	row := q.pool.QueryRow(ctx, `
WITH next AS (
	SELECT id FROM queue_messages
	WHERE queue_name = $1 AND visible_at <= now()
	ORDER BY id
	FOR UPDATE SKIP LOCKED
	LIMIT 1
)
UPDATE queue_messages q
SET visible_at = now() + ($2::int * interval '1 second'), read_ct = read_ct + 1
FROM next
WHERE q.id = next.id
RETURNING q.id, q.read_ct, q.payload`, q.name, visibilityTimeoutSeconds)

	var (
		id      int64
		readCt  int
		payload []byte
	)
	if err := row.Scan(&id, &readCt, &payload); err != nil {
		if err == pgx.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, apperr.Unavailable("read message", err)
	}

	var decoded T
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, false, apperr.Invalid("decode queue payload", err)
	}

	return &Message[T]{ID: id, ReadCt: readCt, Payload: decoded}, true, nil
}

// Delete removes msgID. A message that no longer exists is not an error:
// deleting is idempotent.
func (q *Queue[T]) Delete(ctx context.Context, msgID int64) error {
	_, err := q.pool.Exec(ctx, `DELETE FROM queue_messages WHERE id = $1`, msgID)
	if err != nil {
		return apperr.Unavailable("delete message", err)
	}
	return nil
}

// ExtendVisibility sets a new visibility deadline of now()+duration for
// msgID; used as the heartbeat primitive during long-running handlers.
func (q *Queue[T]) ExtendVisibility(ctx context.Context, msgID int64, durationSeconds int) error {
	_, err := q.pool.Exec(ctx, `
UPDATE queue_messages SET visible_at = now() + ($2::int * interval '1 second')
WHERE id = $1`, msgID, durationSeconds)
	if err != nil {
		return apperr.Unavailable("extend visibility", err)
	}
	return nil
}
