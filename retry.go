package durable

import (
	"time"

	"github.com/petrijr/durable/pkg/api"
)

// RetryBuilder provides a fluent way to construct RetryOptions values
// for use with WithRetry.
type RetryBuilder struct {
	opts RetryOptions
}

// Retry creates a RetryBuilder with the given maxAttempts. The first
// attempt counts, so Retry(3) allows two retries.
//
// maxAttempts <= 0 is treated as 1 (no retries).
func Retry(maxAttempts int) RetryBuilder {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return RetryBuilder{
		opts: RetryOptions{
			MaxNumberOfAttempts: maxAttempts,
			Backoff:             api.BackoffFixed,
		},
	}
}

// WithExponentialBackoff doubles the delay after every failed attempt,
// starting at initial. max caps a single delay; if <= 0, there is no cap.
//
// Example:
//
//	Retry(3).WithExponentialBackoff(100*time.Millisecond, 2*time.Second)
func (r RetryBuilder) WithExponentialBackoff(initial, max time.Duration) RetryBuilder {
	o := r.opts
	o.FirstRetryInterval = initial
	o.MaxRetryInterval = max
	o.Backoff = api.BackoffExponential
	return RetryBuilder{opts: o}
}

// WithLinearBackoff waits initial, 2*initial, 3*initial, ... between
// attempts, capped at max when max > 0.
func (r RetryBuilder) WithLinearBackoff(initial, max time.Duration) RetryBuilder {
	o := r.opts
	o.FirstRetryInterval = initial
	o.MaxRetryInterval = max
	o.Backoff = api.BackoffLinear
	return RetryBuilder{opts: o}
}

// WithFibonacciBackoff grows the delay along the Fibonacci sequence.
func (r RetryBuilder) WithFibonacciBackoff(initial, max time.Duration) RetryBuilder {
	o := r.opts
	o.FirstRetryInterval = initial
	o.MaxRetryInterval = max
	o.Backoff = api.BackoffFibonacci
	return RetryBuilder{opts: o}
}

// WithConstantBackoff configures a constant delay between retries.
func (r RetryBuilder) WithConstantBackoff(delay time.Duration) RetryBuilder {
	o := r.opts
	o.FirstRetryInterval = delay
	o.MaxRetryInterval = 0
	o.Backoff = api.BackoffFixed
	return RetryBuilder{opts: o}
}

// Immediate disables any wait between retries.
// Retries will still respect the attempt limit.
func (r RetryBuilder) Immediate() RetryBuilder {
	o := r.opts
	o.FirstRetryInterval = 0
	o.MaxRetryInterval = 0
	o.Backoff = api.BackoffFixed
	return RetryBuilder{opts: o}
}

// OnKinds restricts retries to failures of the given kinds, e.g.
// Retry(3).OnKinds(api.ErrorKindTransient).
func (r RetryBuilder) OnKinds(kinds ...string) RetryBuilder {
	o := r.opts
	o.Handle = api.HandleKinds(kinds...)
	return RetryBuilder{opts: o}
}

// Options returns the underlying RetryOptions.
func (r RetryBuilder) Options() RetryOptions {
	return r.opts
}

// CallOption returns the builder as an option for CallActivity or
// CallSubOrchestrator.
func (r RetryBuilder) CallOption() api.CallOption {
	return api.WithRetry(r.opts)
}
