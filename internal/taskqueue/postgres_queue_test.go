package taskqueue

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/suite"

	"github.com/petrijr/durable/internal/testutil"
)

type PostgresQueueTestSuite struct {
	suite.Suite
	db *sql.DB
}

func TestPostgresQueueTestSuite(t *testing.T) {
	dsn := testutil.StartPostgresContainer(t)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	suite.Run(t, &PostgresQueueTestSuite{db: db})
}

func (s *PostgresQueueTestSuite) TestContract() {
	runQueueContract(s.T(), func(t *testing.T) Queue {
		if _, err := s.db.ExecContext(context.Background(), `DROP TABLE IF EXISTS queue_tasks`); err != nil {
			t.Fatalf("drop table: %v", err)
		}
		q, err := NewPostgresQueue(s.db)
		if err != nil {
			t.Fatalf("NewPostgresQueue failed: %v", err)
		}
		return q
	})
}
