package core

import "errors"

// ErrorCode represents a stable, machine-readable error identifier.
type ErrorCode string

// Error code constants, one per outcome and error kind.
const (
	// ErrCodeTransport indicates a network, DNS or TLS failure.
	ErrCodeTransport ErrorCode = "TRANSPORT_ERROR"
	// ErrCodeRequestMalformed indicates the exchange rejected the request as invalid.
	ErrCodeRequestMalformed ErrorCode = "REQUEST_MALFORMED"
	// ErrCodeWafLimit indicates a WAF limit violation.
	ErrCodeWafLimit ErrorCode = "WAF_LIMIT_VIOLATED"
	// ErrCodeRateLimit indicates the rate limit was exceeded.
	ErrCodeRateLimit ErrorCode = "RATE_LIMIT"
	// ErrCodeIPBanned indicates the client IP is banned.
	ErrCodeIPBanned ErrorCode = "IP_BANNED"
	// ErrCodeServerError indicates a server-side error occurred.
	ErrCodeServerError ErrorCode = "SERVER_ERROR"
	// ErrCodeUndefinedStatus indicates an unexpected HTTP status code.
	ErrCodeUndefinedStatus ErrorCode = "UNDEFINED_STATUS"

	// Payload errors
	ErrCodeMalformedJSON ErrorCode = "MALFORMED_JSON"
	ErrCodeMissingField  ErrorCode = "MISSING_FIELD"

	// Configuration errors
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
)

// IsErrorCode checks if the error matches the specified error code.
func IsErrorCode(err error, code ErrorCode) bool {
	var wErr *WalletError
	if errors.As(err, &wErr) {
		return ErrorCode(wErr.Code) == code
	}
	return false
}
