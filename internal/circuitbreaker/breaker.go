// Package circuitbreaker suspends polling after repeated failed refresh cycles.
package circuitbreaker

import (
	"sync"
	"time"
)

type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config controls when the breaker opens and closes.
// FailThreshold consecutive failures open it; after Timeout one trial cycle is let through;
// SuccessThreshold successes in half-open close it again.
type Config struct {
	FailThreshold    int           `json:"fail_threshold"`
	SuccessThreshold int           `json:"success_threshold"`
	Timeout          time.Duration `json:"timeout"`
	// Now overrides the clock, mostly for tests.
	Now func() time.Time `json:"-"`
}

type Breaker struct {
	mu               sync.Mutex
	state            State
	failures         int
	successes        int
	openedAt         time.Time
	failThreshold    int
	successThreshold int
	timeout          time.Duration
	now              func() time.Time
	onChange         func(from, to State)
}

func New(config Config) *Breaker {
	if config.FailThreshold < 1 {
		config.FailThreshold = 1
	}
	if config.SuccessThreshold < 1 {
		config.SuccessThreshold = 1
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Breaker{
		state:            StateClosed,
		failThreshold:    config.FailThreshold,
		successThreshold: config.SuccessThreshold,
		timeout:          config.Timeout,
		now:              config.Now,
	}
}

// OnStateChange registers a callback invoked on every transition.
// The callback runs with the breaker locked and must not call back into it.
func (b *Breaker) OnStateChange(fn func(from, to State)) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

// Allow reports whether a cycle may run. An open breaker moves to half-open
// once the timeout has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.timeout {
		b.transitionTo(StateHalfOpen)
	}
	return b.state != StateOpen
}

// Record reports the result of a cycle that Allow let through.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		if success {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.failThreshold {
			b.open()
		}
	case StateHalfOpen:
		if !success {
			b.open()
			return
		}
		b.successes++
		if b.successes >= b.successThreshold {
			b.failures = 0
			b.successes = 0
			b.transitionTo(StateClosed)
		}
	case StateOpen:
		// A result from a cycle started before the breaker opened.
		if !success {
			b.openedAt = b.now()
		}
	}
}

func (b *Breaker) open() {
	b.openedAt = b.now()
	b.successes = 0
	b.transitionTo(StateOpen)
}

func (b *Breaker) transitionTo(newState State) {
	if b.state == newState {
		return
	}
	old := b.state
	b.state = newState
	if b.onChange != nil {
		b.onChange(old, newState)
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// RetryAfter returns how long an open breaker keeps rejecting cycles, or zero otherwise.
func (b *Breaker) RetryAfter() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return 0
	}
	return max(b.timeout-b.now().Sub(b.openedAt), 0)
}
