// Package retry provides the shared retry policy for provider requests:
// linear or exponential delays with full jitter, bounded attempts, and
// context-aware sleeping.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Kind selects the delay progression.
type Kind int

const (
	// Linear grows the delay as attempt * Initial.
	Linear Kind = iota
	// Exponential grows the delay as Initial * Factor^(attempt-1).
	Exponential
)

// Policy bounds a retry loop.
type Policy struct {
	Kind Kind

	// MaxAttempts caps total tries, the first included.
	MaxAttempts int

	// Initial is the base delay before the first retry.
	Initial time.Duration

	// Max clamps any single delay.
	Max time.Duration

	// Factor is the exponential growth factor; ignored for Linear.
	Factor float64

	// Jitter randomizes each delay to a uniform value in [0, delay) (full
	// jitter) when true.
	Jitter bool

	// rand overrides the jitter source in tests.
	rand func() float64
}

// Default is the provider retry policy: 3 attempts, exponential from 500ms
// capped at 10s, with full jitter.
func Default() Policy {
	return Policy{
		Kind:        Exponential,
		MaxAttempts: 3,
		Initial:     500 * time.Millisecond,
		Max:         10 * time.Second,
		Factor:      2,
		Jitter:      true,
	}
}

// Delay computes the sleep before retry number attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := p.Initial
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}

	var d time.Duration
	switch p.Kind {
	case Exponential:
		factor := p.Factor
		if factor <= 1 {
			factor = 2
		}
		d = time.Duration(float64(initial) * math.Pow(factor, float64(attempt-1)))
	default:
		d = time.Duration(attempt) * initial
	}
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	if p.Jitter {
		r := p.rand
		if r == nil {
			r = rand.Float64 // #nosec G404 -- jitter needs no crypto randomness
		}
		d = time.Duration(r() * float64(d))
	}
	return d
}

// Sleep waits the attempt's delay or returns early with the context's
// error.
func (p Policy) Sleep(ctx context.Context, attempt int) error {
	t := time.NewTimer(p.Delay(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs op up to MaxAttempts times, sleeping between tries, while
// isRetryable keeps approving the failure. The last error is returned on
// exhaustion.
func (p Policy) Do(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if isRetryable != nil && !isRetryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}
		if err := p.Sleep(ctx, attempt); err != nil {
			return err
		}
	}
	return lastErr
}
