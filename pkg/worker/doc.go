// Package worker runs the goroutine pool that drains a task queue.
//
// A Worker is deliberately ignorant of what tasks mean: it dequeues work
// items and hands each one to a Handler. The engine is the Handler used in
// practice; it activates orchestration instances, executes activities and
// fires timers depending on the task type.
//
// # Concurrency
//
// Config.Concurrency goroutines pull from the queue independently, so
// activities run in parallel and complete in no particular order. The
// handler is responsible for serializing work that touches the same
// orchestration instance.
//
// # Errors
//
// A failing handler does not stop the pool. The task goes back on the queue
// with an exponential NotBefore delay (Config.RetryBackoff) until its
// Attempts reach Config.MaxTaskAttempts; failures of kind Terminal and tasks
// out of attempts are logged and dropped. Dequeue failures (for example a lost database
// connection) are logged and retried after Config.ErrorBackoff.
//
// # Usage
//
// Most applications never construct a Worker directly: Engine.Run builds
// one from the engine's queue and configuration.
package worker
