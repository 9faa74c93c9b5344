// Package ratelimit bounds concurrent outbound calls and enforces a minimum
// delay between them, grounded on the reference implementation's semaphore
// pattern in internal/embeddings/client.go and batcher.go, generalized into
// a standalone type per spec.md §5's concurrency/resource model.
package ratelimit

import (
	"context"
	"time"
)

// Limiter gates concurrent work to maxConcurrent in flight and, if delay > 0,
// enforces at least delay between successive admissions — the shape
// spec.md §5 asks for (bounded worker pools, rate-limited batch
// operations), without the multi-window quota accounting a general-purpose
// rate limiter would add.
type Limiter struct {
	sem     chan struct{}
	delay   time.Duration
	lastRun chan time.Time
}

// New creates a Limiter admitting at most maxConcurrent callers at once,
// with at least delay between successive Acquire returns. delay <= 0
// disables the inter-call spacing.
func New(maxConcurrent int, delay time.Duration) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	l := &Limiter{
		sem:   make(chan struct{}, maxConcurrent),
		delay: delay,
	}
	if delay > 0 {
		l.lastRun = make(chan time.Time, 1)
		l.lastRun <- time.Time{}
	}
	return l
}

// Acquire blocks until a concurrency slot is free and, if spacing is
// enabled, until delay has elapsed since the previous admission. It returns
// a release func the caller must call (typically via defer) to free the
// slot; ctx cancellation unblocks the wait early.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if l.lastRun != nil {
		select {
		case last := <-l.lastRun:
			if wait := l.delay - time.Since(last); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					l.lastRun <- last
					<-l.sem
					return nil, ctx.Err()
				}
			}
			l.lastRun <- time.Now()
		case <-ctx.Done():
			<-l.sem
			return nil, ctx.Err()
		}
	}

	return func() { <-l.sem }, nil
}

// Run is a convenience wrapper: acquire, run fn, release.
func (l *Limiter) Run(ctx context.Context, fn func() error) error {
	release, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}
