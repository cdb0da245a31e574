package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/petrijr/durable/pkg/api"
)

// PostgresHistoryStore is a HistoryStore backed by PostgreSQL.
//
// It expects an *sql.DB that uses a PostgreSQL driver (for example,
// "github.com/jackc/pgx/v5/stdlib").
//
// The caller is responsible for:
//   - importing the driver for its side effects, e.g.:
//     _ "github.com/jackc/pgx/v5/stdlib"
//   - providing a DSN via sql.Open.
//
// Appends to one instance are serialized with a transaction-scoped advisory
// lock keyed by the instance ID, so several engine processes may share one
// database.
type PostgresHistoryStore struct {
	db *sql.DB
}

// Ensure PostgresHistoryStore implements HistoryStore.
var _ HistoryStore = (*PostgresHistoryStore)(nil)

// NewPostgresHistoryStore initializes the required schema in the given
// database and returns a new PostgresHistoryStore.
func NewPostgresHistoryStore(db *sql.DB) (*PostgresHistoryStore, error) {
	s := &PostgresHistoryStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresHistoryStore) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS orchestration_instances (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS history_events (
			instance_id TEXT NOT NULL REFERENCES orchestration_instances(id) ON DELETE CASCADE,
			seq BIGINT NOT NULL,
			type TEXT NOT NULL,
			data JSONB NOT NULL,
			PRIMARY KEY (instance_id, seq)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func lockInstance(ctx context.Context, tx *sql.Tx, instanceID string) error {
	_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, instanceID)
	return err
}

func (s *PostgresHistoryStore) Create(ctx context.Context, instanceID string, started api.HistoryEvent) error {
	if err := checkStarted(started); err != nil {
		return err
	}
	events := append([]api.HistoryEvent{started})
	encoded, err := encodeEvents(events)
	if err != nil {
		return err
	}

	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO orchestration_instances (id, created_at) VALUES ($1, $2)
			ON CONFLICT (id) DO NOTHING`,
			instanceID, time.Now().UTC())
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return api.ErrInstanceExists
		}
		for i, data := range encoded {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO history_events (instance_id, seq, type, data) VALUES ($1, $2, $3, $4)`,
				instanceID, i+1, string(events[i].Type), string(data)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresHistoryStore) Append(ctx context.Context, instanceID string, events ...api.HistoryEvent) error {
	if len(events) == 0 {
		return nil
	}
	encoded, err := encodeEvents(events)
	if err != nil {
		return err
	}

	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := lockInstance(ctx, tx, instanceID); err != nil {
			return err
		}

		var last sql.NullInt64
		err := tx.QueryRowContext(ctx, `
			SELECT (SELECT MAX(seq) FROM history_events WHERE instance_id = $1)
			FROM orchestration_instances WHERE id = $1`,
			instanceID).Scan(&last)
		if errors.Is(err, sql.ErrNoRows) {
			return api.ErrInstanceNotFound
		}
		if err != nil {
			return err
		}

		seq := last.Int64
		for i, data := range encoded {
			seq++
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO history_events (instance_id, seq, type, data) VALUES ($1, $2, $3, $4)`,
				instanceID, seq, string(events[i].Type), string(data)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresHistoryStore) Read(ctx context.Context, instanceID string) ([]api.HistoryEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM history_events
		WHERE instance_id = $1
		ORDER BY seq ASC`, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.HistoryEvent
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		ev, err := DecodeEvent(data)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, api.ErrInstanceNotFound
	}
	return out, nil
}

func (s *PostgresHistoryStore) Reset(ctx context.Context, instanceID string, started api.HistoryEvent, carried ...api.HistoryEvent) error {
	if err := checkStarted(started); err != nil {
		return err
	}
	events := append([]api.HistoryEvent{started}, carried...)
	encoded, err := encodeEvents(events)
	if err != nil {
		return err
	}

	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := lockInstance(ctx, tx, instanceID); err != nil {
			return err
		}
		var id string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM orchestration_instances WHERE id = $1`, instanceID).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return api.ErrInstanceNotFound
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM history_events WHERE instance_id = $1`, instanceID); err != nil {
			return err
		}
		for i, data := range encoded {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO history_events (instance_id, seq, type, data) VALUES ($1, $2, $3, $4)`,
				instanceID, i+1, string(events[i].Type), string(data)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresHistoryStore) ListInstances(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM orchestration_instances ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
