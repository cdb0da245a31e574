package durable

import (
	"testing"
	"time"

	"github.com/petrijr/durable/internal/retry"
	"github.com/petrijr/durable/pkg/api"
)

// Ensure non-positive maxAttempts is normalized to 1.
func TestRetry_NonPositiveMaxAttemptsDefaultsToOne(t *testing.T) {
	o := Retry(0).Options()
	if o.MaxNumberOfAttempts != 1 {
		t.Fatalf("expected MaxNumberOfAttempts=1 for Retry(0), got %d", o.MaxNumberOfAttempts)
	}

	o = Retry(-5).Options()
	if o.MaxNumberOfAttempts != 1 {
		t.Fatalf("expected MaxNumberOfAttempts=1 for Retry(-5), got %d", o.MaxNumberOfAttempts)
	}
}

func TestRetry_WithExponentialBackoff(t *testing.T) {
	initial := 100 * time.Millisecond
	max := 250 * time.Millisecond

	o := Retry(4).WithExponentialBackoff(initial, max).Options()

	if o.Backoff != api.BackoffExponential {
		t.Fatalf("expected exponential backoff, got %q", o.Backoff)
	}
	if o.FirstRetryInterval != initial || o.MaxRetryInterval != max {
		t.Fatalf("unexpected intervals: first=%v max=%v", o.FirstRetryInterval, o.MaxRetryInterval)
	}

	// 100ms, 200ms, then capped at 250ms.
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 250 * time.Millisecond}
	for i, w := range want {
		d, ok := retry.Decide(o, i+1, api.ErrorKindTransient)
		if !ok {
			t.Fatalf("attempt %d: expected retry", i+1)
		}
		if d != w {
			t.Fatalf("attempt %d: expected delay %v, got %v", i+1, w, d)
		}
	}
	if _, ok := retry.Decide(o, 4, api.ErrorKindTransient); ok {
		t.Fatalf("expected no retry after the 4th attempt")
	}
}

func TestRetry_WithLinearBackoff(t *testing.T) {
	o := Retry(3).WithLinearBackoff(time.Second, 0).Options()

	d1, _ := retry.Decide(o, 1, api.ErrorKindGeneric)
	d2, _ := retry.Decide(o, 2, api.ErrorKindGeneric)
	if d1 != time.Second || d2 != 2*time.Second {
		t.Fatalf("unexpected linear delays: %v, %v", d1, d2)
	}
}

func TestRetry_WithConstantBackoff(t *testing.T) {
	delay := 150 * time.Millisecond

	o := Retry(5).
		WithExponentialBackoff(time.Second, time.Minute).
		WithConstantBackoff(delay).
		Options()

	if o.Backoff != api.BackoffFixed {
		t.Fatalf("expected fixed backoff, got %q", o.Backoff)
	}
	if o.MaxRetryInterval != 0 {
		t.Fatalf("expected no cap for constant backoff, got %v", o.MaxRetryInterval)
	}
	for attempt := 1; attempt < 5; attempt++ {
		d, ok := retry.Decide(o, attempt, api.ErrorKindTransient)
		if !ok || d != delay {
			t.Fatalf("attempt %d: expected %v, got %v (retry=%v)", attempt, delay, d, ok)
		}
	}
}

func TestRetry_Immediate(t *testing.T) {
	o := Retry(2).WithFibonacciBackoff(time.Second, 0).Immediate().Options()

	d, ok := retry.Decide(o, 1, api.ErrorKindTransient)
	if !ok || d != 0 {
		t.Fatalf("expected immediate retry, got %v (retry=%v)", d, ok)
	}
}

func TestRetry_OnKinds(t *testing.T) {
	o := Retry(3).OnKinds(api.ErrorKindTransient).Options()

	if _, ok := retry.Decide(o, 1, api.ErrorKindTransient); !ok {
		t.Fatalf("expected Transient to be retried")
	}
	if _, ok := retry.Decide(o, 1, api.ErrorKindGeneric); ok {
		t.Fatalf("expected Error not to be retried")
	}
}

func TestRetry_CallOption(t *testing.T) {
	opt := Retry(3).WithConstantBackoff(time.Second).CallOption()

	resolved := api.ResolveCallOptions(opt)
	if resolved.Retry == nil {
		t.Fatalf("expected retry options to be attached")
	}
	if resolved.Retry.MaxNumberOfAttempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", resolved.Retry.MaxNumberOfAttempts)
	}
}
