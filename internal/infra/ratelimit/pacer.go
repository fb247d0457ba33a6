// internal/infra/ratelimit/pacer.go
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultSendGap     = 700 * time.Millisecond
	DefaultBackoffStep = 1200 * time.Millisecond
)

// Pacer spaces sends by a minimum gap and sleeps linearly longer on each
// throttled retry. The zero gap disables waiting entirely.
type Pacer struct {
	limiter     *rate.Limiter
	backoffStep time.Duration
}

// NewPacer returns a pacer allowing one send per gap. The first send is
// immediate.
func NewPacer(gap, backoffStep time.Duration) *Pacer {
	p := &Pacer{backoffStep: backoffStep}
	if gap > 0 {
		p.limiter = rate.NewLimiter(rate.Every(gap), 1)
	}
	return p
}

// NoDelay never waits. Used by tests and dry runs.
func NoDelay() *Pacer {
	return &Pacer{}
}

func (p *Pacer) Wait(ctx context.Context) error {
	if p.limiter == nil {
		return ctx.Err()
	}
	return p.limiter.Wait(ctx)
}

// Backoff sleeps attempt × step.
func (p *Pacer) Backoff(ctx context.Context, attempt int) error {
	d := time.Duration(attempt) * p.backoffStep
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
