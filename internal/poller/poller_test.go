package poller

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binancewallet/internal/circuitbreaker"
	"binancewallet/pkg/core"
)

type fakeWallet struct {
	mu    sync.Mutex
	calls int
	err   error
	state core.WalletState
}

func (f *fakeWallet) Refresh(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.state = core.WalletState{Populated: true, TotalBTC: float64(f.calls)}
	return nil
}

func (f *fakeWallet) State() core.WalletState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeWallet) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func start(t *testing.T, p *Poller) (cancel func(), done <-chan error) {
	t.Helper()
	ctx, cancelFn := context.WithCancel(context.Background())
	ch := make(chan error, 1)
	go func() { ch <- p.Run(ctx) }()
	t.Cleanup(cancelFn)
	return cancelFn, ch
}

func TestConfigFrom(t *testing.T) {
	config := core.DefaultConfig()

	pc := ConfigFrom(config)
	assert.Equal(t, time.Hour, pc.Interval)
	require.NotNil(t, pc.Breaker)
	assert.Equal(t, 3, pc.Breaker.FailThreshold)
	assert.Equal(t, 6*time.Hour, pc.Breaker.Timeout)

	config.CircuitBreakerEnabled = false
	assert.Nil(t, ConfigFrom(config).Breaker)
}

func TestPoller_RunsImmediatelyThenPeriodically(t *testing.T) {
	wallet := &fakeWallet{}
	p := New(wallet, Config{Interval: 20 * time.Millisecond})

	cancel, done := start(t, p)

	assert.Eventually(t, func() bool { return wallet.Calls() >= 1 }, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return wallet.Calls() >= 3 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestPoller_RunTwice(t *testing.T) {
	wallet := &fakeWallet{}
	p := New(wallet, Config{Interval: time.Hour})

	start(t, p)
	require.Eventually(t, func() bool { return wallet.Calls() == 1 }, time.Second, time.Millisecond)

	assert.ErrorIs(t, p.Run(context.Background()), ErrAlreadyRunning)
}

func TestPoller_TriggerIsThrottled(t *testing.T) {
	wallet := &fakeWallet{}
	var buf syncBuffer
	p := New(wallet, Config{Interval: time.Hour}, WithLogger(zerolog.New(&buf).Level(zerolog.DebugLevel)))

	start(t, p)
	require.Eventually(t, func() bool { return wallet.Calls() == 1 }, time.Second, time.Millisecond)

	p.Trigger()
	p.Trigger()

	assert.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "refresh throttled")
	}, time.Second, time.Millisecond)
	assert.Equal(t, 1, wallet.Calls())
}

func TestPoller_OnThrottle(t *testing.T) {
	wallet := &fakeWallet{}
	p := New(wallet, Config{Interval: time.Hour})

	var throttled atomic.Int32
	p.OnThrottle(func() { throttled.Add(1) })

	start(t, p)
	require.Eventually(t, func() bool { return wallet.Calls() == 1 }, time.Second, time.Millisecond)

	p.Trigger()

	assert.Eventually(t, func() bool { return throttled.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, wallet.Calls())
}

func TestPoller_TriggerAfterInterval(t *testing.T) {
	wallet := &fakeWallet{}
	p := New(wallet, Config{Interval: 50 * time.Millisecond})

	start(t, p)
	require.Eventually(t, func() bool { return wallet.Calls() == 1 }, time.Second, time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	p.Trigger()

	assert.Eventually(t, func() bool { return wallet.Calls() >= 2 }, time.Second, time.Millisecond)
}

func TestPoller_OnResult(t *testing.T) {
	wallet := &fakeWallet{}
	p := New(wallet, Config{Interval: time.Hour})

	results := make(chan core.WalletState, 1)
	p.OnResult(func(state core.WalletState, err error) {
		assert.NoError(t, err)
		results <- state
	})

	start(t, p)

	select {
	case state := <-results:
		assert.True(t, state.Populated)
		assert.Equal(t, 1.0, state.TotalBTC)
	case <-time.After(time.Second):
		t.Fatal("no result delivered")
	}
}

func TestPoller_OnResultReportsErrors(t *testing.T) {
	failure := core.NewOutcomeError(core.OutcomeRateLimitExceeded, 429, nil)
	wallet := &fakeWallet{err: failure}
	p := New(wallet, Config{Interval: time.Hour})

	errs := make(chan error, 1)
	p.OnResult(func(_ core.WalletState, err error) { errs <- err })

	start(t, p)

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, failure)
	case <-time.After(time.Second):
		t.Fatal("no result delivered")
	}
}

func TestPoller_BreakerSkipsCycles(t *testing.T) {
	wallet := &fakeWallet{err: errors.New("boom")}
	p := New(wallet, Config{
		Interval: 10 * time.Millisecond,
		Breaker: &circuitbreaker.Config{
			FailThreshold:    2,
			SuccessThreshold: 1,
			Timeout:          time.Hour,
		},
	})

	var mu sync.Mutex
	skipped := 0
	p.OnSkip(func() {
		mu.Lock()
		skipped++
		mu.Unlock()
	})

	start(t, p)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return skipped >= 2
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 2, wallet.Calls())
	assert.Equal(t, circuitbreaker.StateOpen, p.Breaker().State())
}

func TestPoller_OnBreakerChange(t *testing.T) {
	wallet := &fakeWallet{err: errors.New("boom")}
	p := New(wallet, Config{
		Interval: 10 * time.Millisecond,
		Breaker: &circuitbreaker.Config{
			FailThreshold:    1,
			SuccessThreshold: 1,
			Timeout:          time.Hour,
		},
	})

	moves := make(chan circuitbreaker.State, 4)
	p.OnBreakerChange(func(_, to circuitbreaker.State) { moves <- to })

	start(t, p)

	select {
	case to := <-moves:
		assert.Equal(t, circuitbreaker.StateOpen, to)
	case <-time.After(time.Second):
		t.Fatal("no breaker transition delivered")
	}
}

func TestPoller_NoBreaker(t *testing.T) {
	wallet := &fakeWallet{err: errors.New("boom")}
	p := New(wallet, Config{Interval: 10 * time.Millisecond})

	assert.Nil(t, p.Breaker())

	start(t, p)
	assert.Eventually(t, func() bool { return wallet.Calls() >= 4 }, 2*time.Second, 5*time.Millisecond)
}
