package core

// MarketType represents the account type a snapshot is requested for.
type MarketType int

// MarketTypeSpot selects the spot wallet, the only account type the sensor reads.
const MarketTypeSpot MarketType = iota

// String returns the accountSnapshot "type" parameter value.
func (m MarketType) String() string {
	return "SPOT"
}
