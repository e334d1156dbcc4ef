// Package binance implements the Binance account snapshot wallet.
//
// The package includes:
//   - Signer: timestamped HMAC-SHA256 signed accountSnapshot queries
//   - Classify: HTTP status code to outcome mapping
//   - SnapshotParser: accountSnapshot payload to canonical Snapshot
//   - Wallet: the update pipeline and last known good state
//
// Example usage:
//
//	w, err := binance.New(core.Credentials{APIKey: key, SecretKey: secret}, binance.WithLogger(logger))
//	w.Update(ctx)
//	state := w.State()
package binance
