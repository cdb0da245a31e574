// Package durable provides an embeddable engine for durable, replayable
// orchestrations written as plain Go functions.
//
// An orchestration survives process restarts because the engine never keeps
// its state in memory between steps. Every step is recorded in an
// append-only history, and whenever new work arrives the orchestrator
// function is run again from the top against that history ("replay").
// Calls whose outcome is already recorded return immediately; the first call
// with no recorded outcome suspends the function until its result arrives.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. Orchestrator
//  2. Activity
//  3. Engine
//  4. LocalRunner and Bundle
//
// # Orchestrator
//
// An Orchestrator coordinates durable work through an OrchestrationContext:
//
//	func ProcessOrder(ctx durable.OrchestrationContext) (any, error) {
//	    var order Order
//	    if err := ctx.GetInput(&order); err != nil {
//	        return nil, err
//	    }
//	    if err := ctx.CallActivity("Charge", order).Await(nil); err != nil {
//	        return nil, err
//	    }
//	    return "shipped", ctx.CallActivity("Ship", order).Await(nil)
//	}
//
// Orchestrators must be deterministic: given the same history they must issue
// the same calls in the same order. Use ctx.CurrentTime instead of time.Now,
// durable timers (ctx.CreateTimer) instead of time.Sleep, and activities for
// anything that touches the outside world. A replay that issues different
// calls than the history recorded halts the instance with status FAULTED.
//
// The context also offers sub-orchestrations, external events (optionally
// bounded by a timeout), WhenAll / WhenAny for fan-out and races, retries
// via WithRetry, and ContinueAsNew for long-running loops that would
// otherwise grow an unbounded history.
//
// # Activity
//
// Activities are ordinary functions that perform side effects. They run on
// the engine's worker pool, may run more than once, and report failures with
// a kind (Transient, Terminal, ...) that retry policies match on.
//
// # Engine
//
// The Engine stores histories, hosts the registered functions and runs the
// worker pool. Engines can be backed by:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability)
//   - PostgreSQL
//   - Redis
//   - MongoDB
//
// Each backend includes a matching work-item queue. Call RecoverInstances on
// startup to re-dispatch work that was in flight when the process stopped.
//
// # LocalRunner and Bundle
//
// LocalRunner runs an in-memory engine in the background for tests and
// demos. Bundle opens the backend described by a YAML Config and owns its
// connections.
package durable
