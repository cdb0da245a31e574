// Package api contains the public building blocks of the durable
// orchestration engine: the orchestrator and activity function types, the
// OrchestrationContext they program against, history events, payloads,
// errors and observers.
//
// Most users interact with the higher-level durable package, which
// re-exports selected types and provides engine constructors. The api
// package is intended for advanced use cases, custom integrations, or
// contributors extending the engine itself.
//
// # Orchestrators
//
// An Orchestrator is a plain Go function that coordinates work through an
// OrchestrationContext. Each call to CallActivity, CallSubOrchestrator,
// CreateTimer or WaitForExternalEvent is a suspension point. The engine
// records the outcome of every suspension point in an append-only history
// and, on every activation, re-runs the orchestrator from the start while
// handing it the recorded results. Orchestrator code must therefore be
// deterministic:
//
//   - no time-dependent branching (use CurrentTime, not time.Now)
//   - no unguarded randomness or I/O
//   - the same calls in the same order on every replay
//
// A replay that schedules something different from what history recorded
// halts the instance with a DeterminismError and StatusFaulted.
//
// # Activities
//
// Activities do the actual side-effecting work. They run on worker
// goroutines, may run concurrently, and may be retried according to the
// RetryOptions attached with WithRetry. Activities classify failures with
// NewTransientError and NewTerminalError.
//
// # Payloads
//
// Inputs and outputs cross the history as Payload values: JSON data tagged
// with the Go type name of the encoded value. Decoding into a different
// concrete type fails with ErrPayloadTypeMismatch.
//
// # Observability
//
// The Observer interface is used by the engine and dispatcher to report
// lifecycle events. LoggingObserver, BasicMetrics and TracingObserver are
// ready-made implementations that can be combined with
// NewCompositeObserver. Orchestrators that log should use
// ReplaySafeLogger so each message is written once.
package api
