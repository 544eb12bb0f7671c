package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"formfiller/internal/descriptor"
	"formfiller/internal/dom"
)

// RetryPolicy bounds how long resolution waits for late rendered elements.
type RetryPolicy struct {
	Attempts   int           `yaml:"attempts"`
	Delay      time.Duration `yaml:"delay"`
	Multiplier float64       `yaml:"multiplier"`
	MaxDelay   time.Duration `yaml:"max_delay"`
}

// DefaultRetryPolicy waits at most 100+200+400ms across three attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: 800 * time.Millisecond}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	if p.MaxDelay <= 0 || p.MaxDelay < p.Delay {
		p.MaxDelay = p.Delay
	}
	return p
}

// Backoff returns the wait before attempt n (1-based, n >= 2).
func (p RetryPolicy) Backoff(n int) time.Duration {
	p = p.normalized()
	d := p.Delay
	for i := 2; i < n; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

// SnapshotFunc fetches a fresh view of the page.
type SnapshotFunc func(ctx context.Context) (*dom.Document, error)

// ResolveWithRetry re-snapshots the page and retries Resolve until it
// succeeds, the attempts run out, or ctx is done.
func (r *Resolver) ResolveWithRetry(ctx context.Context, snapshot SnapshotFunc, d descriptor.Descriptor, exp Expect, policy RetryPolicy) (Match, error) {
	policy = policy.normalized()
	var lastErr error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		if attempt > 1 {
			wait := policy.Backoff(attempt)
			r.log.Debug("retrying element lookup", zap.Int("attempt", attempt), zap.Duration("wait", wait))
			if err := sleep(ctx, wait); err != nil {
				return Match{}, err
			}
		}
		doc, err := snapshot(ctx)
		if err != nil {
			lastErr = fmt.Errorf("snapshot: %w", err)
			continue
		}
		m, err := r.Resolve(ctx, doc, d, exp)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, ErrElementNotFound) {
			return Match{}, err
		}
		lastErr = err
	}
	if !errors.Is(lastErr, ErrElementNotFound) {
		return Match{}, fmt.Errorf("%w after %d attempts: %v", ErrElementNotFound, policy.Attempts, lastErr)
	}
	return Match{}, fmt.Errorf("%w after %d attempts", ErrElementNotFound, policy.Attempts)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
