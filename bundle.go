package durable

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	_ "modernc.org/sqlite"
)

// Bundle is an Engine together with the backend connections it owns.
type Bundle struct {
	Engine Engine
	Config Config
	Logger *slog.Logger

	closers []func() error
}

// Open connects to the backend selected by cfg and builds an Engine on it.
// The caller registers orchestrators and activities on b.Engine, then runs
// it; Close releases the connections.
//
// Typical usage:
//
//	cfg, _ := durable.LoadConfig("videoflow.yaml")
//	b, err := durable.Open(ctx, cfg, logger, nil)
//	if err != nil { ... }
//	defer b.Close()
func Open(ctx context.Context, cfg Config, logger *slog.Logger, observer Observer) (*Bundle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = NewLoggingObserver(logger)
	}

	b := &Bundle{Config: cfg, Logger: logger}
	ecfg := cfg.EngineConfig(logger, observer)

	var err error
	switch cfg.Backend {
	case BackendMemory:
		b.Engine = NewEngine(ecfg)

	case BackendSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = ":memory:"
		}
		var db *sql.DB
		if db, err = sql.Open("sqlite", dsn); err == nil {
			b.closers = append(b.closers, db.Close)
			b.Engine, err = NewSQLiteEngine(db, ecfg)
		}

	case BackendPostgres:
		var db *sql.DB
		if db, err = sql.Open("pgx", cfg.DSN); err == nil {
			b.closers = append(b.closers, db.Close)
			if err = db.PingContext(ctx); err == nil {
				b.Engine, err = NewPostgresEngine(db, ecfg)
			}
		}

	case BackendRedis:
		var opts *redis.Options
		if opts, err = redis.ParseURL(cfg.DSN); err == nil {
			client := redis.NewClient(opts)
			b.closers = append(b.closers, client.Close)
			if err = client.Ping(ctx).Err(); err == nil {
				b.Engine = NewRedisEngine(client, ecfg)
			}
		}

	case BackendMongo:
		var client *mongo.Client
		if client, err = mongo.Connect(ctx, options.Client().ApplyURI(cfg.DSN)); err == nil {
			b.closers = append(b.closers, func() error { return client.Disconnect(context.Background()) })
			if err = client.Ping(ctx, nil); err == nil {
				dbName := cfg.Database
				if dbName == "" {
					dbName = "durable"
				}
				b.Engine = NewMongoEngine(client, dbName, ecfg)
			}
		}
	}

	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("open %s backend: %w", cfg.Backend, err)
	}
	return b, nil
}

// Close releases the backend connections in reverse order of opening.
func (b *Bundle) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
