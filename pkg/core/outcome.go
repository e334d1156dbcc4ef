package core

// Outcome is the classified result of an HTTP response from the exchange.
type Outcome int

// Outcome constants collapse HTTP status codes into a small decision set.
const (
	// OutcomeSuccess indicates a 200 response.
	OutcomeSuccess Outcome = iota
	// OutcomeRequestMalformed indicates a 4xx response not covered by a more specific outcome.
	OutcomeRequestMalformed
	// OutcomeWafLimitViolated indicates the web application firewall rejected the request (403).
	OutcomeWafLimitViolated
	// OutcomeRateLimitExceeded indicates the request weight limit was exceeded (429).
	OutcomeRateLimitExceeded
	// OutcomeIPBanned indicates the IP was auto-banned after repeated 429s (418).
	OutcomeIPBanned
	// OutcomeInternalError indicates a 5xx response.
	OutcomeInternalError
	// OutcomeUndefined indicates any status code not covered above.
	OutcomeUndefined
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	if o < OutcomeSuccess || o > OutcomeUndefined {
		return "UNDEFINED"
	}
	return [...]string{
		"SUCCESS",
		"REQUEST_MALFORMED",
		"WAF_LIMIT_VIOLATED",
		"RATE_LIMIT_EXCEEDED",
		"IP_BANNED",
		"INTERNAL_ERROR",
		"UNDEFINED",
	}[o]
}

// Code returns the error code reported when a request ends with this outcome.
func (o Outcome) Code() ErrorCode {
	switch o {
	case OutcomeSuccess:
		return ""
	case OutcomeRequestMalformed:
		return ErrCodeRequestMalformed
	case OutcomeWafLimitViolated:
		return ErrCodeWafLimit
	case OutcomeRateLimitExceeded:
		return ErrCodeRateLimit
	case OutcomeIPBanned:
		return ErrCodeIPBanned
	case OutcomeInternalError:
		return ErrCodeServerError
	default:
		return ErrCodeUndefinedStatus
	}
}
