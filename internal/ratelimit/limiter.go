// Package ratelimit enforces a minimum interval between wallet refreshes.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle admits at most one call per interval. The first call is admitted immediately.
type Throttle struct {
	limiter *rate.Limiter
}

// New creates a Throttle admitting one call every interval.
// A non-positive interval disables throttling.
func New(interval time.Duration) *Throttle {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Throttle{limiter: rate.NewLimiter(limit, 1)}
}

// Allow reports whether a call may run now and consumes the slot if so.
func (t *Throttle) Allow() bool {
	return t.AllowAt(time.Now())
}

// AllowAt is Allow evaluated at the given instant.
func (t *Throttle) AllowAt(now time.Time) bool {
	return t.limiter.AllowN(now, 1)
}

// Wait blocks until a call may run or the context is cancelled.
func (t *Throttle) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}

// Delay returns how long a caller would have to wait for the next slot, without consuming it.
func (t *Throttle) Delay() time.Duration {
	now := time.Now()
	r := t.limiter.ReserveN(now, 1)
	defer r.CancelAt(now)
	return r.DelayFrom(now)
}
