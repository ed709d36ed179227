package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLinearDelay(t *testing.T) {
	p := Policy{Kind: Linear, Initial: 100 * time.Millisecond}
	if got := p.Delay(1); got != 100*time.Millisecond {
		t.Errorf("attempt 1 delay = %s", got)
	}
	if got := p.Delay(3); got != 300*time.Millisecond {
		t.Errorf("attempt 3 delay = %s", got)
	}
}

func TestExponentialDelayWithCap(t *testing.T) {
	p := Policy{Kind: Exponential, Initial: 100 * time.Millisecond, Factor: 2, Max: 350 * time.Millisecond}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 350 * time.Millisecond, 350 * time.Millisecond}
	for i, w := range want {
		if got := p.Delay(i + 1); got != w {
			t.Errorf("attempt %d delay = %s, want %s", i+1, got, w)
		}
	}
}

func TestFullJitterBoundsDelay(t *testing.T) {
	p := Policy{Kind: Exponential, Initial: time.Second, Factor: 2, Jitter: true, rand: func() float64 { return 0.5 }}
	if got := p.Delay(1); got != 500*time.Millisecond {
		t.Errorf("jittered delay = %s, want 500ms", got)
	}
	p.rand = func() float64 { return 0 }
	if got := p.Delay(1); got != 0 {
		t.Errorf("full jitter floor = %s, want 0", got)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	err := Policy{MaxAttempts: 5, Initial: time.Microsecond}.Do(context.Background(),
		func(error) bool { return false },
		func() error { calls++; return fatal },
	)
	if !errors.Is(err, fatal) || calls != 1 {
		t.Errorf("err=%v calls=%d", err, calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	transient := errors.New("again")
	calls := 0
	err := Policy{MaxAttempts: 3, Initial: time.Microsecond}.Do(context.Background(),
		func(error) bool { return true },
		func() error { calls++; return transient },
	)
	if !errors.Is(err, transient) || calls != 3 {
		t.Errorf("err=%v calls=%d", err, calls)
	}
}

func TestDoSucceedsMidway(t *testing.T) {
	calls := 0
	err := Policy{MaxAttempts: 3, Initial: time.Microsecond}.Do(context.Background(),
		func(error) bool { return true },
		func() error {
			calls++
			if calls < 2 {
				return errors.New("transient")
			}
			return nil
		},
	)
	if err != nil || calls != 2 {
		t.Errorf("err=%v calls=%d", err, calls)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Policy{MaxAttempts: 3, Initial: time.Hour}.Do(ctx,
		func(error) bool { return true },
		func() error { return errors.New("x") },
	)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
