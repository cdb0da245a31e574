package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/petrijr/durable/pkg/api"
)

// SQLiteHistoryStore is a HistoryStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
//
// SQLite allows a single writer, so the store limits the pool to one
// connection. This also keeps ":memory:" databases shared across calls.
type SQLiteHistoryStore struct {
	db *sql.DB
}

// Ensure SQLiteHistoryStore implements HistoryStore.
var _ HistoryStore = (*SQLiteHistoryStore)(nil)

// NewSQLiteHistoryStore initializes the required schema in the given
// database and returns a new SQLiteHistoryStore.
func NewSQLiteHistoryStore(db *sql.DB) (*SQLiteHistoryStore, error) {
	db.SetMaxOpenConns(1)
	s := &SQLiteHistoryStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteHistoryStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS orchestration_instances (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS history_events (
			instance_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			type TEXT NOT NULL,
			data TEXT NOT NULL,
			PRIMARY KEY (instance_id, seq)
		);
	`)
	return err
}

func (s *SQLiteHistoryStore) Create(ctx context.Context, instanceID string, started api.HistoryEvent) error {
	if err := checkStarted(started); err != nil {
		return err
	}
	events := append([]api.HistoryEvent{started})
	encoded, err := encodeEvents(events)
	if err != nil {
		return err
	}

	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO orchestration_instances (id, created_at) VALUES (?, ?)`,
			instanceID, time.Now().UnixNano())
		if err != nil {
			if isUniqueViolation(err) {
				return api.ErrInstanceExists
			}
			return err
		}
		for i, data := range encoded {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO history_events (instance_id, seq, type, data) VALUES (?, ?, ?, ?)`,
				instanceID, i+1, string(events[i].Type), string(data)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteHistoryStore) Append(ctx context.Context, instanceID string, events ...api.HistoryEvent) error {
	if len(events) == 0 {
		return nil
	}
	encoded, err := encodeEvents(events)
	if err != nil {
		return err
	}

	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		var last sql.NullInt64
		err := tx.QueryRowContext(ctx, `
			SELECT (SELECT MAX(seq) FROM history_events WHERE instance_id = ?)
			FROM orchestration_instances WHERE id = ?`,
			instanceID, instanceID).Scan(&last)
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
				`INSERT INTO history_events (instance_id, seq, type, data) VALUES (?, ?, ?, ?)`,
				instanceID, seq, string(events[i].Type), string(data)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteHistoryStore) Read(ctx context.Context, instanceID string) ([]api.HistoryEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM history_events
		WHERE instance_id = ?
		ORDER BY seq ASC`, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.HistoryEvent
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		ev, err := DecodeEvent([]byte(data))
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

func (s *SQLiteHistoryStore) Reset(ctx context.Context, instanceID string, started api.HistoryEvent, carried ...api.HistoryEvent) error {
	if err := checkStarted(started); err != nil {
		return err
	}
	events := append([]api.HistoryEvent{started}, carried...)
	encoded, err := encodeEvents(events)
	if err != nil {
		return err
	}

	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM orchestration_instances WHERE id = ?`, instanceID).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return api.ErrInstanceNotFound
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM history_events WHERE instance_id = ?`, instanceID); err != nil {
			return err
		}
		for i, data := range encoded {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO history_events (instance_id, seq, type, data) VALUES (?, ?, ?, ?)`,
				instanceID, i+1, string(events[i].Type), string(data)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteHistoryStore) ListInstances(ctx context.Context) ([]string, error) {
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

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "constraint failed")
}
