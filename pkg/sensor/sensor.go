// Package sensor exposes a wallet as a named, identifiable reading with
// attributes, the shape a home-automation host expects from a sensor entity.
package sensor

import (
	"context"
	"fmt"
	"strings"

	"binancewallet/pkg/core"
	"binancewallet/pkg/exchange/binance"
)

const (
	namePrefix     = "Binance Wallet "
	uniqueIDPrefix = "binance_wallet_"
	keyPrefixLen   = 4
)

// AssetAttribute is one entry of the assets attribute.
type AssetAttribute struct {
	Asset string  `json:"asset"`
	Total float64 `json:"total"`
}

// Attributes are the extra state attributes published next to the total.
type Attributes struct {
	DataTimestamp string           `json:"data_timestamp"`
	Assets        []AssetAttribute `json:"assets"`
}

// Sensor publishes the total BTC value of a wallet.
type Sensor struct {
	wallet   *binance.Wallet
	uniqueID string
	name     string
	icon     string
}

// New creates a sensor backed by a new wallet for the given credentials.
// uniqueID, displayName and icon may be empty to use the defaults.
func New(apiKey, apiSecret, uniqueID, displayName, icon string, opts ...binance.Option) (*Sensor, error) {
	wallet, err := binance.New(core.Credentials{APIKey: apiKey, SecretKey: apiSecret}, opts...)
	if err != nil {
		return nil, fmt.Errorf("create wallet: %w", err)
	}
	return NewWithWallet(wallet, apiKey, uniqueID, displayName, icon), nil
}

// NewFromConfig creates a sensor from a validated config.
func NewFromConfig(config *core.Config, opts ...binance.Option) (*Sensor, error) {
	wallet, err := binance.NewFromConfig(config, opts...)
	if err != nil {
		return nil, err
	}
	return NewWithWallet(wallet, config.APIKey, config.UniqueID, config.Name, config.Icon), nil
}

// NewWithWallet wraps an existing wallet. apiKey is only used to derive the
// default identity and is never stored.
func NewWithWallet(wallet *binance.Wallet, apiKey, uniqueID, displayName, icon string) *Sensor {
	if icon == "" {
		icon = core.DefaultIcon
	}
	return &Sensor{
		wallet:   wallet,
		uniqueID: deriveUniqueID(apiKey, uniqueID),
		name:     deriveName(apiKey, displayName),
		icon:     icon,
	}
}

func keyPrefix(apiKey string) string {
	if len(apiKey) < keyPrefixLen {
		return apiKey
	}
	return apiKey[:keyPrefixLen]
}

func deriveUniqueID(apiKey, uniqueID string) string {
	if id := strings.TrimSpace(uniqueID); id != "" {
		return strings.ToLower(id)
	}
	return uniqueIDPrefix + strings.ToLower(keyPrefix(apiKey))
}

func deriveName(apiKey, displayName string) string {
	if displayName != "" {
		return namePrefix + displayName
	}
	return namePrefix + keyPrefix(apiKey) + "xxxx"
}

// UniqueID returns the stable identifier of the sensor.
func (s *Sensor) UniqueID() string { return s.uniqueID }

// Name returns the display name.
func (s *Sensor) Name() string { return s.name }

// Icon returns the icon identifier.
func (s *Sensor) Icon() string { return s.icon }

// UnitOfMeasurement is always BTC.
func (s *Sensor) UnitOfMeasurement() string { return core.UnitBTC }

// Wallet returns the underlying wallet.
func (s *Sensor) Wallet() *binance.Wallet { return s.wallet }

// State returns the total BTC value. ok is false until the first successful update.
func (s *Sensor) State() (total float64, ok bool) {
	state := s.wallet.State()
	return state.TotalBTC, state.Populated
}

// Timestamp returns the last update time as DD-MM-YYYY HH:MM, or "" before the first update.
func (s *Sensor) Timestamp() string {
	return s.wallet.State().FormattedTimestamp()
}

// Attributes returns the data timestamp and per-asset totals.
func (s *Sensor) Attributes() Attributes {
	return attributesFromState(s.wallet.State())
}

func attributesFromState(state core.WalletState) Attributes {
	assets := make([]AssetAttribute, 0, len(state.Balances))
	for _, b := range state.Balances {
		assets = append(assets, AssetAttribute{Asset: b.Asset, Total: b.Total})
	}
	return Attributes{
		DataTimestamp: state.FormattedTimestamp(),
		Assets:        assets,
	}
}

// Update runs one refresh cycle on the wallet. Failures keep the previous state.
func (s *Sensor) Update(ctx context.Context) {
	s.wallet.Update(ctx)
}

// Close releases the wallet's resources.
func (s *Sensor) Close() error {
	return s.wallet.Close()
}
