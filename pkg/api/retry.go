package api

import "time"

// BackoffStrategy selects how the delay between attempts grows.
type BackoffStrategy string

const (
	// BackoffFixed waits FirstRetryInterval before every retry.
	BackoffFixed BackoffStrategy = "fixed"
	// BackoffLinear waits FirstRetryInterval multiplied by the number of
	// failed attempts so far.
	BackoffLinear BackoffStrategy = "linear"
	// BackoffExponential doubles the delay after each failed attempt.
	BackoffExponential BackoffStrategy = "exponential"
	// BackoffFibonacci grows the delay along the Fibonacci sequence.
	BackoffFibonacci BackoffStrategy = "fibonacci"
)

// RetryOptions is attached to an activity call with WithRetry.
//
// MaxNumberOfAttempts includes the first attempt. Values below 1 are
// treated as 1 (no retries).
type RetryOptions struct {
	FirstRetryInterval  time.Duration
	MaxNumberOfAttempts int

	// Backoff defaults to BackoffFixed.
	Backoff BackoffStrategy

	// MaxRetryInterval caps a single delay. Zero means no cap.
	MaxRetryInterval time.Duration

	// Handle decides whether a failure of the given kind may be retried.
	// A nil Handle retries every kind except ErrorKindTerminal.
	Handle func(kind string) bool
}

// Retryable reports whether a failure kind is eligible for retry under o.
func (o RetryOptions) Retryable(kind string) bool {
	if o.Handle != nil {
		return o.Handle(kind)
	}
	return kind != ErrorKindTerminal
}

// HandleKinds builds a Handle predicate accepting exactly the given kinds.
func HandleKinds(kinds ...string) func(kind string) bool {
	set := make(map[string]struct{}, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}
	return func(kind string) bool {
		_, ok := set[kind]
		return ok
	}
}
