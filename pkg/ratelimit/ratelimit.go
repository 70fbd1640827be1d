package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Pacer enforces a minimum pause between consecutive calls, measured from the
// end of the previous call to the start of the next one. Calls are serialized:
// while one call runs, others queue on the pacer. It is safe for concurrent use
// by multiple goroutines and is meant to be shared by every caller of a
// rate-limited upstream.
type Pacer struct {
	// mu doubles as the dispatch queue; it is held for the whole call.
	mu   sync.Mutex
	gap  time.Duration
	last time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPacer creates a pacer with the given minimum gap. A gap <= 0 still
// serializes calls but never sleeps.
func NewPacer(gap time.Duration) *Pacer {
	if gap < 0 {
		gap = 0
	}
	return &Pacer{
		gap:   gap,
		now:   time.Now,
		sleep: sleepCtx,
	}
}

// Gap returns the configured minimum pause.
func (p *Pacer) Gap() time.Duration {
	return p.gap
}

// Do waits until the gap since the previous call has elapsed, then runs fn.
// The end of fn becomes the reference point for the next call, whether fn
// succeeded or not. If ctx is canceled while waiting, fn is not run and the
// context error is returned.
func (p *Pacer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.last.IsZero() && p.gap > 0 {
		if wait := p.gap - p.now().Sub(p.last); wait > 0 {
			if err := p.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := fn(ctx)
	p.last = p.now()
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
