package binance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
	"time"

	"binancewallet/pkg/core"
)

// Param is a single query parameter. Parameters are kept in a slice so the
// encoding order is fixed.
type Param struct {
	Key   string
	Value string
}

// SignedQuery is a canonical query string and its HMAC-SHA256 signature.
type SignedQuery struct {
	// Params are the signed parameters in encoding order, without the signature.
	Params []Param
	// Canonical is the URL-encoded form of Params that was signed.
	Canonical string
	// Signature is the lowercase hex HMAC-SHA256 of Canonical.
	Signature string
}

// Encode returns the query string to send: the canonical string followed by the signature.
// Canonical is reused verbatim, never re-encoded.
func (q SignedQuery) Encode() string {
	return q.Canonical + "&signature=" + q.Signature
}

// Signer builds timestamped, signed accountSnapshot queries.
type Signer struct {
	secret     []byte
	marketType core.MarketType
	now        func() time.Time
}

// NewSigner creates a signer keyed by secret. A nil clock uses time.Now.
func NewSigner(secret string, now func() time.Time) *Signer {
	if now == nil {
		now = time.Now
	}
	return &Signer{
		secret:     []byte(secret),
		marketType: core.MarketTypeSpot,
		now:        now,
	}
}

// Sign returns the signed parameter set for the current time.
func (s *Signer) Sign() SignedQuery {
	params := []Param{
		{Key: "type", Value: s.marketType.String()},
		{Key: "timestamp", Value: strconv.FormatInt(s.now().UnixMilli(), 10)},
	}
	canonical := encodeParams(params)
	return SignedQuery{
		Params:    params,
		Canonical: canonical,
		Signature: signHMAC(canonical, s.secret),
	}
}

func encodeParams(params []Param) string {
	var b strings.Builder
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
	}
	return b.String()
}

func signHMAC(message string, secret []byte) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}
