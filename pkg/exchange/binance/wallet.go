package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	httpClient "binancewallet/internal/http"
	"binancewallet/pkg/core"
)

const (
	ProductionURL = core.DefaultBaseURL

	// EndpointAccountSnapshot is the daily account snapshot endpoint (SAPI).
	EndpointAccountSnapshot = "/sapi/v1/accountSnapshot"
	// HeaderAPIKey carries the API key on signed requests.
	HeaderAPIKey = "X-MBX-APIKEY"

	// snapshotWeight is the IP weight charged for one accountSnapshot call.
	snapshotWeight = 2400
)

// Wallet polls the account snapshot endpoint and holds the last known good result.
// Update is not meant to be called concurrently with itself; State may be read at any time.
type Wallet struct {
	creds  core.Credentials
	signer *Signer
	client *httpClient.Client
	parser *SnapshotParser
	logger zerolog.Logger

	mu    sync.RWMutex
	state core.WalletState
}

// Option is a functional option for configuring the Wallet.
type Option func(*Options)

// Options holds configuration options for the Wallet.
type Options struct {
	Logger  zerolog.Logger
	Clock   func() time.Time
	BaseURL string
	Timeout time.Duration
}

// WithLogger returns an option that sets the logger for the wallet.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithClock returns an option that sets the clock used for request timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		o.Clock = now
	}
}

// WithBaseURL returns an option that overrides the exchange base URL.
func WithBaseURL(url string) Option {
	return func(o *Options) {
		o.BaseURL = url
	}
}

// WithTimeout returns an option that sets the request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.Timeout = timeout
	}
}

// New creates a Wallet for the given credentials.
func New(creds core.Credentials, opts ...Option) (*Wallet, error) {
	if creds.APIKey == "" || creds.SecretKey == "" {
		return nil, core.NewConfigError(core.ErrNoCredentials)
	}

	options := &Options{
		Logger:  zerolog.Nop(),
		Clock:   time.Now,
		BaseURL: ProductionURL,
		Timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(options)
	}

	client, err := httpClient.NewClient(&httpClient.Config{
		BaseURL: options.BaseURL,
		Timeout: options.Timeout,
	}, options.Logger)
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}

	return &Wallet{
		creds:  creds,
		signer: NewSigner(creds.SecretKey, options.Clock),
		client: client,
		parser: NewSnapshotParser(options.Logger),
		logger: options.Logger,
	}, nil
}

// NewFromConfig creates a Wallet from a validated config.
func NewFromConfig(config *core.Config, opts ...Option) (*Wallet, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	base := []Option{
		WithBaseURL(config.BaseURL),
		WithTimeout(config.Timeout),
	}
	return New(config.Credentials(), append(base, opts...)...)
}

// Close releases the HTTP client.
func (w *Wallet) Close() error {
	return w.client.Close()
}

// Fetch runs one request cycle: sign, execute, classify and parse.
// It never modifies the wallet state.
func (w *Wallet) Fetch(ctx context.Context) (*core.Snapshot, error) {
	query := w.signer.Sign()

	req := core.NewRequest(http.MethodGet, EndpointAccountSnapshot).
		SetRawQuery(query.Encode()).
		SetHeader(HeaderAPIKey, w.creds.APIKey).
		SetWeight(snapshotWeight)

	resp, err := w.client.Do(ctx, req)
	if err != nil {
		return nil, core.NewTransportError(err)
	}

	outcome := Classify(resp.StatusCode)
	if outcome == core.OutcomeUndefined {
		w.logger.Warn().Int("status", resp.StatusCode).Msg("undefined HTTP status code")
	}
	if outcome != core.OutcomeSuccess {
		return nil, core.NewOutcomeError(outcome, resp.StatusCode, resp.Body)
	}

	return w.parser.Parse(resp.Body)
}

// Refresh fetches a new snapshot and, on success, replaces the wallet state.
// On failure the error is logged, the previous state is kept and the error is returned.
func (w *Wallet) Refresh(ctx context.Context) error {
	snapshot, err := w.Fetch(ctx)
	if err != nil {
		w.logFailure(err)
		return err
	}

	w.mu.Lock()
	w.state = core.StateFromSnapshot(snapshot)
	w.mu.Unlock()

	w.logger.Debug().
		Int("balances", len(snapshot.Balances)).
		Float64("total_btc", snapshot.TotalBTC).
		Msg("successfully parsed response")
	return nil
}

// Update triggers one refresh cycle. Failures are logged and never returned;
// last known good data stays in place.
func (w *Wallet) Update(ctx context.Context) {
	_ = w.Refresh(ctx)
}

// State returns a copy of the last known good state.
func (w *Wallet) State() core.WalletState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state.Clone()
}

func (w *Wallet) logFailure(err error) {
	var wErr *core.WalletError
	if !errors.As(err, &wErr) {
		w.logger.Warn().Err(err).Msg("wallet update failed")
		return
	}

	switch wErr.Type {
	case core.ErrorTypeHTTPOutcome:
		w.logger.Warn().
			Str("outcome", wErr.Outcome.String()).
			Int("status", wErr.StatusCode).
			Str("body", wErr.Body).
			Msg("unsuccessful request")
	case core.ErrorTypeMalformedJSON:
		w.logger.Warn().Err(err).Msg("could not parse response")
	case core.ErrorTypeMissingField:
		w.logger.Warn().Str("field", wErr.Field).Msg("required attribute missing in response JSON")
	case core.ErrorTypeTransport:
		w.logger.Warn().Err(err).Msg("snapshot request failed")
	default:
		w.logger.Warn().Err(err).Msg("wallet update failed")
	}
}
