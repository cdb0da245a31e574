package engine

import (
	"database/sql"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/durable/internal/persistence"
	"github.com/petrijr/durable/internal/taskqueue"
	"github.com/petrijr/durable/pkg/api"
)

// NewInMemoryEngine returns an Engine whose history and queue live in
// process memory.
func NewInMemoryEngine() api.Engine {
	return NewEngineWithConfig(Config{})
}

// NewSQLiteEngine keeps history and work items in the given SQLite database.
// cfg.History and cfg.Queue are overwritten.
func NewSQLiteEngine(db *sql.DB, cfg Config) (api.Engine, error) {
	history, err := persistence.NewSQLiteHistoryStore(db)
	if err != nil {
		return nil, err
	}
	queue, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}

	cfg.History = history
	cfg.Queue = queue
	return NewEngineWithConfig(cfg), nil
}

// NewPostgresEngine keeps history and work items in PostgreSQL. db is
// expected to use the pgx stdlib driver.
func NewPostgresEngine(db *sql.DB, cfg Config) (api.Engine, error) {
	history, err := persistence.NewPostgresHistoryStore(db)
	if err != nil {
		return nil, err
	}
	queue, err := taskqueue.NewPostgresQueue(db)
	if err != nil {
		return nil, err
	}

	cfg.History = history
	cfg.Queue = queue
	return NewEngineWithConfig(cfg), nil
}

// NewRedisEngine keeps history and work items in Redis under the
// "durable:" key prefix.
func NewRedisEngine(client redis.UniversalClient, cfg Config) api.Engine {
	cfg.History = persistence.NewRedisHistoryStore(client, "durable:")
	cfg.Queue = taskqueue.NewRedisQueue(client, "durable:")
	return NewEngineWithConfig(cfg)
}

// NewMongoEngine keeps history and work items in the given MongoDB database.
func NewMongoEngine(client *mongo.Client, dbName string, cfg Config) api.Engine {
	cfg.History = persistence.NewMongoHistoryStore(client, dbName, "history")
	cfg.Queue = taskqueue.NewMongoQueue(client, dbName, "tasks")
	return NewEngineWithConfig(cfg)
}
