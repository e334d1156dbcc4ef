// Package metrics exports wallet readings and update results as Prometheus metrics.
package metrics

import (
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"binancewallet/internal/circuitbreaker"
	"binancewallet/pkg/core"
)

// Result label values for the updates counter.
const (
	ResultSuccess = "success"
	ResultSkipped = "skipped"
)

// Registry holds the wallet metrics on a dedicated Prometheus registry.
type Registry struct {
	registry *prometheus.Registry
	now      func() time.Time

	TotalBTC    *prometheus.GaugeVec
	AssetTotal  *prometheus.GaugeVec
	Updates     *prometheus.CounterVec
	LastSuccess *prometheus.GaugeVec
	// BreakerState is 0 closed, 1 open, 2 half-open.
	BreakerState *prometheus.GaugeVec
	Throttled    *prometheus.CounterVec
}

// NewRegistry creates and registers all wallet metrics.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		now:      time.Now,

		TotalBTC: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "binance_wallet_total_btc",
				Help: "Total value of the wallet in BTC",
			},
			[]string{"wallet"},
		),

		AssetTotal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "binance_wallet_asset_total",
				Help: "Free plus locked amount per asset",
			},
			[]string{"wallet", "asset"},
		),

		Updates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "binance_wallet_updates_total",
				Help: "Wallet update cycles by result",
			},
			[]string{"wallet", "result"},
		),

		LastSuccess: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "binance_wallet_last_success_timestamp_seconds",
				Help: "Unix time at which the last update succeeded",
			},
			[]string{"wallet"},
		),

		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "binance_wallet_breaker_state",
				Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
			},
			[]string{"wallet"},
		),

		Throttled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "binance_wallet_refresh_throttled_total",
				Help: "Triggered refreshes dropped by the throttle",
			},
			[]string{"wallet"},
		),
	}

	r.registry.MustRegister(
		r.TotalBTC,
		r.AssetTotal,
		r.Updates,
		r.LastSuccess,
		r.BreakerState,
		r.Throttled,
	)

	return r
}

// Gatherer returns the registry for exposition.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Observe records the result of one update cycle for the given wallet.
// On success every per-asset gauge of the wallet is replaced, so assets that
// disappeared from the account stop being reported.
func (r *Registry) Observe(wallet string, state core.WalletState, err error) {
	if err != nil {
		r.Updates.WithLabelValues(wallet, ResultLabel(err)).Inc()
		return
	}

	r.Updates.WithLabelValues(wallet, ResultSuccess).Inc()
	if !state.Populated {
		return
	}

	r.TotalBTC.WithLabelValues(wallet).Set(state.TotalBTC)
	r.LastSuccess.WithLabelValues(wallet).Set(float64(r.now().Unix()))

	r.AssetTotal.DeletePartialMatch(prometheus.Labels{"wallet": wallet})
	for _, b := range state.Balances {
		r.AssetTotal.WithLabelValues(wallet, b.Asset).Set(b.Total)
	}
}

// Skipped counts a cycle that did not run because the breaker was open.
func (r *Registry) Skipped(wallet string) {
	r.Updates.WithLabelValues(wallet, ResultSkipped).Inc()
}

// SetBreakerState records the current circuit breaker state of the wallet.
func (r *Registry) SetBreakerState(wallet string, state circuitbreaker.State) {
	r.BreakerState.WithLabelValues(wallet).Set(float64(state))
}

// RefreshThrottled counts a triggered refresh that the throttle dropped.
func (r *Registry) RefreshThrottled(wallet string) {
	r.Throttled.WithLabelValues(wallet).Inc()
}

// ResultLabel maps an update error to a low-cardinality label value.
func ResultLabel(err error) string {
	if err == nil {
		return ResultSuccess
	}
	var wErr *core.WalletError
	if errors.As(err, &wErr) && wErr.Code != "" {
		return strings.ToLower(string(wErr.Code))
	}
	return "error"
}
