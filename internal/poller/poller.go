// Package poller schedules wallet refreshes: once at start, then every interval,
// throttled to one refresh per interval and suspended by a circuit breaker after
// repeated failures.
package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"binancewallet/internal/circuitbreaker"
	"binancewallet/internal/ratelimit"
	"binancewallet/pkg/core"
)

// ErrAlreadyRunning is returned by Run when the poller is already running.
var ErrAlreadyRunning = errors.New("poller already running")

// Refresher is the wallet surface the poller drives.
type Refresher interface {
	Refresh(ctx context.Context) error
	State() core.WalletState
}

// ResultFunc receives the wallet state and error after every refresh that ran.
type ResultFunc func(state core.WalletState, err error)

// Config controls the schedule.
type Config struct {
	Interval time.Duration
	// Breaker is nil when the circuit breaker is disabled.
	Breaker *circuitbreaker.Config
}

// ConfigFrom derives a poller config from the wallet config.
func ConfigFrom(c *core.Config) Config {
	config := Config{Interval: c.PollInterval}
	if c.CircuitBreakerEnabled {
		config.Breaker = &circuitbreaker.Config{
			FailThreshold:    c.CircuitBreakerFailThreshold,
			SuccessThreshold: c.CircuitBreakerSuccessThreshold,
			Timeout:          c.CircuitBreakerTimeout,
		}
	}
	return config
}

// Poller runs refresh cycles for one wallet. A wallet is never refreshed
// concurrently with itself while driven by a poller.
type Poller struct {
	target   Refresher
	interval time.Duration
	throttle *ratelimit.Throttle
	breaker  *circuitbreaker.Breaker
	logger   zerolog.Logger

	mu            sync.RWMutex
	onResult      []ResultFunc
	onSkip        []func()
	onThrottle    []func()
	onBreakerMove []func(from, to circuitbreaker.State)

	trigger chan struct{}
	running atomic.Bool
}

// Option is a functional option for configuring the Poller.
type Option func(*Poller)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Poller) {
		p.logger = l
	}
}

// New creates a Poller for target.
func New(target Refresher, config Config, opts ...Option) *Poller {
	if config.Interval <= 0 {
		config.Interval = core.DefaultPollInterval
	}

	p := &Poller{
		target:   target,
		interval: config.Interval,
		throttle: ratelimit.New(config.Interval),
		logger:   zerolog.Nop(),
		trigger:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}

	if config.Breaker != nil {
		p.breaker = circuitbreaker.New(*config.Breaker)
		p.breaker.OnStateChange(func(from, to circuitbreaker.State) {
			p.logger.Info().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
			p.mu.RLock()
			defer p.mu.RUnlock()
			for _, fn := range p.onBreakerMove {
				fn(from, to)
			}
		})
	}

	return p
}

// OnResult registers a callback invoked after every refresh that ran.
func (p *Poller) OnResult(fn ResultFunc) {
	p.mu.Lock()
	p.onResult = append(p.onResult, fn)
	p.mu.Unlock()
}

// OnSkip registers a callback invoked when a cycle is skipped because the breaker is open.
func (p *Poller) OnSkip(fn func()) {
	p.mu.Lock()
	p.onSkip = append(p.onSkip, fn)
	p.mu.Unlock()
}

// OnThrottle registers a callback invoked when a triggered refresh is dropped by the throttle.
func (p *Poller) OnThrottle(fn func()) {
	p.mu.Lock()
	p.onThrottle = append(p.onThrottle, fn)
	p.mu.Unlock()
}

// OnBreakerChange registers a callback invoked on every circuit breaker transition.
// It runs with the breaker locked and must not call back into it.
func (p *Poller) OnBreakerChange(fn func(from, to circuitbreaker.State)) {
	p.mu.Lock()
	p.onBreakerMove = append(p.onBreakerMove, fn)
	p.mu.Unlock()
}

// Breaker returns the circuit breaker, or nil when disabled.
func (p *Poller) Breaker() *circuitbreaker.Breaker {
	return p.breaker
}

// Trigger asks for an out-of-band refresh. It is dropped if one is already
// pending and throttled if the last refresh is more recent than the interval.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Run refreshes immediately and then every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer p.running.Store(false)

	p.logger.Info().Dur("interval", p.interval).Msg("poller started")

	p.throttle.Allow()
	p.cycle(ctx)

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("poller stopped")
			return nil
		case <-timer.C:
			if err := p.throttle.Wait(ctx); err != nil {
				continue
			}
			p.cycle(ctx)
			timer.Reset(p.interval)
		case <-p.trigger:
			if !p.throttle.Allow() {
				p.logger.Debug().
					Dur("retry_after", p.throttle.Delay()).
					Msg("refresh throttled")
				p.notifyThrottle()
				continue
			}
			p.cycle(ctx)
			timer.Reset(p.interval)
		}
	}
}

func (p *Poller) cycle(ctx context.Context) {
	if p.breaker != nil && !p.breaker.Allow() {
		p.logger.Debug().
			Dur("retry_after", p.breaker.RetryAfter()).
			Msg("circuit open, skipping update")
		p.notifySkip()
		return
	}

	err := p.target.Refresh(ctx)
	if ctx.Err() != nil {
		return
	}
	if p.breaker != nil {
		p.breaker.Record(err == nil)
	}
	p.notifyResult(p.target.State(), err)
}

func (p *Poller) notifyResult(state core.WalletState, err error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, fn := range p.onResult {
		fn(state, err)
	}
}

func (p *Poller) notifySkip() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, fn := range p.onSkip {
		fn()
	}
}

func (p *Poller) notifyThrottle() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, fn := range p.onThrottle {
		fn()
	}
}
