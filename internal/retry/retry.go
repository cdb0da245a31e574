// Package retry decides whether failed activity attempts are rescheduled.
//
// Decisions are pure functions of the RetryOptions, the attempt number and
// the failure kind, so a replaying orchestrator reaches the same decision
// (and therefore schedules the same retry timer) every time.
package retry

import (
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/petrijr/durable/pkg/api"
)

// Decide reports whether the failed attempt (1-based) should be retried and
// how long to wait before the next one.
//
// Failures whose kind the policy does not handle are terminal regardless of
// the remaining attempts.
func Decide(opts api.RetryOptions, attempt int, kind string) (time.Duration, bool) {
	if !opts.Retryable(kind) {
		return 0, false
	}
	if attempt < 1 || attempt >= maxAttempts(opts) {
		return 0, false
	}

	// Backoffs are stateful; rebuild and advance one step per failed attempt.
	b := NewBackoff(opts)
	var delay time.Duration
	for i := 0; i < attempt; i++ {
		next, stop := b.Next()
		if stop {
			return 0, false
		}
		delay = next
	}
	return delay, true
}

// NewBackoff builds the go-retry backoff described by opts, bounded by
// MaxNumberOfAttempts and capped by MaxRetryInterval.
func NewBackoff(opts api.RetryOptions) retry.Backoff {
	base := opts.FirstRetryInterval

	var b retry.Backoff
	switch opts.Backoff {
	case api.BackoffExponential:
		if base > 0 {
			b = retry.NewExponential(base)
		}
	case api.BackoffFibonacci:
		if base > 0 {
			b = retry.NewFibonacci(base)
		}
	case api.BackoffLinear:
		var n time.Duration
		b = retry.BackoffFunc(func() (time.Duration, bool) {
			n++
			return base * n, false
		})
	}
	if b == nil {
		// retry.NewConstant rejects non-positive durations; a zero interval
		// means "retry immediately".
		b = retry.BackoffFunc(func() (time.Duration, bool) {
			return base, false
		})
	}

	if opts.MaxRetryInterval > 0 {
		b = retry.WithCappedDuration(opts.MaxRetryInterval, b)
	}
	return retry.WithMaxRetries(uint64(maxAttempts(opts)-1), b)
}

func maxAttempts(opts api.RetryOptions) int {
	if opts.MaxNumberOfAttempts < 1 {
		return 1
	}
	return opts.MaxNumberOfAttempts
}
