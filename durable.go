package durable

import (
	"context"
	"database/sql"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/durable/internal/engine"
	"github.com/petrijr/durable/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	Client               = api.Client
	EngineConfig         = engine.Config
	OrchestrationContext = api.OrchestrationContext
	Orchestrator         = api.Orchestrator
	Activity             = api.Activity
	Task                 = api.Task
	Payload              = api.Payload
	OrchestrationState   = api.OrchestrationState
	InstanceListOptions  = api.InstanceListOptions
	StartOption          = api.StartOption
	Status               = api.Status
	RetryOptions         = api.RetryOptions
	ActivityError        = api.ActivityError
	TaskFailedError      = api.TaskFailedError
	FailureDetails       = api.FailureDetails
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	TracingObserver      = api.TracingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewTracingObserver   = api.NewTracingObserver
	NewCompositeObserver = api.NewCompositeObserver
	NewTransientError    = api.NewTransientError
	NewTerminalError     = api.NewTerminalError
	WithInstanceID       = api.WithInstanceID
	WithRetry            = api.WithRetry
	ReplaySafeLogger     = api.ReplaySafeLogger
)

// Re-export status values for convenience.

const (
	StatusPending   = api.StatusPending
	StatusRunning   = api.StatusRunning
	StatusCompleted = api.StatusCompleted
	StatusFailed    = api.StatusFailed
	StatusFaulted   = api.StatusFaulted
)

// Engine constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// NewInMemoryEngine returns an Engine backed entirely by in-memory stores.
func NewInMemoryEngine() Engine {
	return engine.NewInMemoryEngine()
}

// NewEngine returns an in-memory Engine with the given configuration.
// History and Queue in cfg are honoured when set.
func NewEngine(cfg EngineConfig) Engine {
	return engine.NewEngineWithConfig(cfg)
}

// NewSQLiteEngine returns an Engine that keeps history and work items in a
// SQLite database.
func NewSQLiteEngine(db *sql.DB, cfg EngineConfig) (Engine, error) {
	return engine.NewSQLiteEngine(db, cfg)
}

// NewPostgresEngine returns an Engine that keeps history and work items in
// PostgreSQL. db must use the pgx stdlib driver.
func NewPostgresEngine(db *sql.DB, cfg EngineConfig) (Engine, error) {
	return engine.NewPostgresEngine(db, cfg)
}

// NewRedisEngine returns an Engine that keeps history and work items in Redis.
func NewRedisEngine(client redis.UniversalClient, cfg EngineConfig) Engine {
	return engine.NewRedisEngine(client, cfg)
}

// NewMongoEngine returns an Engine that keeps history and work items in
// MongoDB.
func NewMongoEngine(client *mongo.Client, dbName string, cfg EngineConfig) Engine {
	return engine.NewMongoEngine(client, dbName, cfg)
}

// Register adds every orchestrator and activity in the given maps to eng.
func Register(eng Engine, orchestrators map[string]Orchestrator, activities map[string]Activity) error {
	for name, fn := range orchestrators {
		if err := eng.RegisterOrchestrator(name, fn); err != nil {
			return err
		}
	}
	for name, fn := range activities {
		if err := eng.RegisterActivity(name, fn); err != nil {
			return err
		}
	}
	return nil
}

// Convenience helpers that just forward to the underlying Client.

// Start starts a new orchestration instance and returns its ID.
func Start(ctx context.Context, c Client, name string, input any) (string, error) {
	return c.StartOrchestration(ctx, name, input)
}

// RunToCompletion starts an orchestration and waits for it to finish.
// The engine must be running (see Engine.Run or LocalRunner).
func RunToCompletion(ctx context.Context, c Client, name string, input any) (*OrchestrationState, error) {
	id, err := c.StartOrchestration(ctx, name, input)
	if err != nil {
		return nil, err
	}
	return c.WaitForCompletion(ctx, id)
}

// RaiseEvent delivers a named external event to an instance.
func RaiseEvent(ctx context.Context, c Client, id, name string, payload any) error {
	return c.RaiseEvent(ctx, id, name, payload)
}

// GetStatus fetches the state of an instance by ID.
func GetStatus(ctx context.Context, c Client, id string) (*OrchestrationState, error) {
	return c.GetStatus(ctx, id)
}

// ListInstances lists instances according to the given options.
func ListInstances(ctx context.Context, c Client, opts InstanceListOptions) ([]*OrchestrationState, error) {
	return c.ListInstances(ctx, opts)
}

// RecoverInstances delegates to eng.RecoverInstances.
//
// It is typically called on process startup before starting any workers:
//
//	count, err := durable.RecoverInstances(ctx, engine)
func RecoverInstances(ctx context.Context, eng Engine) (int, error) {
	return eng.RecoverInstances(ctx)
}

// Output decodes the output of a completed instance.
func Output[T any](st *OrchestrationState) (T, error) {
	return api.DecodePayload[T](st.Output)
}
