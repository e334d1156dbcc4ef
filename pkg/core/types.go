package core

import (
	"fmt"
	"slices"
	"time"
)

// TimestampLayout is the DD-MM-YYYY HH:MM layout used for the last update time.
const TimestampLayout = "02-01-2006 15:04"

// UnitBTC is the unit of the wallet total.
const UnitBTC = "BTC"

// Credentials holds API authentication credentials for the exchange.
type Credentials struct {
	// APIKey is the public API key identifier, sent as a header.
	APIKey string `json:"api_key"`
	// SecretKey is the private key used for signing requests. It is never transmitted.
	SecretKey string `json:"-"`
}

// String returns the credentials with the API key masked and the secret omitted.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{APIKey:%s}", MaskKey(c.APIKey))
}

// MaskKey hides all but the first and last four characters of a key.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

// Balance is the total holding of a single asset.
type Balance struct {
	// Asset is the asset symbol (e.g., "BTC").
	Asset string `json:"asset"`
	// Total is free plus locked amount.
	Total float64 `json:"total"`
}

// Snapshot is a point-in-time capture of account balances returned by the exchange.
type Snapshot struct {
	// Timestamp is the server-side update time, in UTC.
	Timestamp time.Time `json:"timestamp"`
	// TotalBTC is the value of the whole account expressed in BTC.
	TotalBTC float64 `json:"total_btc"`
	// Balances lists the per-asset totals in exchange order.
	Balances []Balance `json:"balances"`
}

// WalletState is the last known good result held by a wallet.
// The zero value is the uninitialized state.
type WalletState struct {
	Populated bool      `json:"populated"`
	Timestamp time.Time `json:"timestamp"`
	TotalBTC  float64   `json:"total_btc"`
	Balances  []Balance `json:"balances"`
}

// StateFromSnapshot builds a populated state from a snapshot.
func StateFromSnapshot(s *Snapshot) WalletState {
	return WalletState{
		Populated: true,
		Timestamp: s.Timestamp,
		TotalBTC:  s.TotalBTC,
		Balances:  slices.Clone(s.Balances),
	}
}

// Clone returns a deep copy of the state.
func (s WalletState) Clone() WalletState {
	s.Balances = slices.Clone(s.Balances)
	return s
}

// FormattedTimestamp returns the update time as DD-MM-YYYY HH:MM,
// or an empty string when no update has succeeded yet.
func (s WalletState) FormattedTimestamp() string {
	if !s.Populated {
		return ""
	}
	return s.Timestamp.Format(TimestampLayout)
}
