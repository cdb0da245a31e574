package taskqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// PostgresQueue implements Queue using a PostgreSQL table.
//
// Schema (created automatically if missing):
//
//	CREATE TABLE IF NOT EXISTS queue_tasks (
//	    id          TEXT PRIMARY KEY,
//	    type        TEXT NOT NULL,
//	    instance_id TEXT NOT NULL,
//	    payload     BYTEA NOT NULL,
//	    not_before  TIMESTAMPTZ NOT NULL
//	);
//
// Several processes may consume the same table: rows are claimed with
// DELETE ... FOR UPDATE SKIP LOCKED.
type PostgresQueue struct {
	db           *sql.DB
	pollInterval time.Duration
}

// NewPostgresQueue creates the required schema if needed and returns a Queue.
func NewPostgresQueue(db *sql.DB) (*PostgresQueue, error) {
	q := &PostgresQueue{db: db, pollInterval: 100 * time.Millisecond}
	if err := q.initSchema(); err != nil {
		return nil, err
	}
	return q, nil
}

// Ensure PostgresQueue implements Queue.
var _ Queue = (*PostgresQueue)(nil)

func (q *PostgresQueue) initSchema() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS queue_tasks (
			id          TEXT PRIMARY KEY,
			type        TEXT NOT NULL,
			instance_id TEXT NOT NULL,
			payload     BYTEA NOT NULL,
			not_before  TIMESTAMPTZ NOT NULL
		)
	`)
	return err
}

// Enqueue inserts a task into the queue.
func (q *PostgresQueue) Enqueue(ctx context.Context, t Task) error {
	prepare(&t)
	data, err := EncodeTask(t)
	if err != nil {
		return err
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO queue_tasks (id, type, instance_id, payload, not_before)
		VALUES ($1, $2, $3, $4, $5)
	`, t.ID, string(t.Type), t.InstanceID, data, t.NotBefore.UTC())
	return err
}

// Dequeue polls until a due task is available or ctx is cancelled.
func (q *PostgresQueue) Dequeue(ctx context.Context) (*Task, error) {
	tmr := newStoppedTimer()
	defer tmr.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var (
			id      string
			payload []byte
		)
		err := q.db.QueryRowContext(ctx, `
			DELETE FROM queue_tasks
			WHERE id = (
				SELECT id FROM queue_tasks
				WHERE not_before <= now()
				ORDER BY not_before
				FOR UPDATE SKIP LOCKED
				LIMIT 1
			)
			RETURNING id, payload
		`).Scan(&id, &payload)
		if errors.Is(err, sql.ErrNoRows) {
			if err := sleep(ctx, tmr, q.pollInterval); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		task, err := DecodeTask(payload)
		if err != nil {
			return nil, fmt.Errorf("decode task %q failed: %w", id, err)
		}
		task.Attempts++
		return task, nil
	}
}

// Len returns an approximate number of queued tasks.
func (q *PostgresQueue) Len() int {
	var n int
	if err := q.db.QueryRow(`SELECT COUNT(*) FROM queue_tasks`).Scan(&n); err != nil {
		slog.Default().Warn("postgres queue length failed", slog.Any("error", err))
		return 0
	}
	return n
}
