package binance

import "binancewallet/pkg/core"

// Classify maps an HTTP status code to an outcome. It never looks at the body.
//
//	200        → Success
//	403        → WafLimitViolated
//	429        → RateLimitExceeded
//	418        → IPBanned
//	other 4xx  → RequestMalformed
//	5xx        → InternalError
//	anything else → Undefined
func Classify(statusCode int) core.Outcome {
	switch {
	case statusCode == 200:
		return core.OutcomeSuccess
	case statusCode == 403:
		return core.OutcomeWafLimitViolated
	case statusCode == 429:
		return core.OutcomeRateLimitExceeded
	case statusCode == 418:
		return core.OutcomeIPBanned
	case statusCode >= 400 && statusCode < 500:
		return core.OutcomeRequestMalformed
	case statusCode >= 500 && statusCode < 600:
		return core.OutcomeInternalError
	default:
		return core.OutcomeUndefined
	}
}
