package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the category of a wallet update error.
type ErrorType int

// Error type constants categorize errors for logging and scheduling decisions.
const (
	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeTransport indicates a network, DNS or TLS failure before any response.
	ErrorTypeTransport
	// ErrorTypeHTTPOutcome indicates a response that was not classified as success.
	ErrorTypeHTTPOutcome
	// ErrorTypeMalformedJSON indicates the response body is not valid JSON.
	ErrorTypeMalformedJSON
	// ErrorTypeMissingField indicates an expected key is absent or has the wrong shape.
	ErrorTypeMissingField
	// ErrorTypeInvalidConfig indicates invalid wallet configuration.
	ErrorTypeInvalidConfig
)

// String returns the string representation of the error type.
func (t ErrorType) String() string {
	if t < ErrorTypeUnknown || t > ErrorTypeInvalidConfig {
		return "UNKNOWN"
	}
	return [...]string{
		"UNKNOWN",
		"TRANSPORT",
		"HTTP_OUTCOME",
		"MALFORMED_JSON",
		"MISSING_FIELD",
		"INVALID_CONFIG",
	}[t]
}

// Sentinel errors for common error conditions.
var (
	// ErrNoCredentials is returned when the API key or secret is empty.
	ErrNoCredentials = errors.New("no credentials configured")
)

// maxBodyInError bounds the response body kept on an error.
const maxBodyInError = 512

// WalletError represents a structured error raised during a wallet update.
type WalletError struct {
	// Type categorizes the error for programmatic handling.
	Type ErrorType `json:"type"`
	// Outcome is the classified HTTP outcome, set for ErrorTypeHTTPOutcome.
	Outcome Outcome `json:"outcome"`
	// StatusCode is the HTTP status code from the response, if any.
	StatusCode int `json:"status_code,omitempty"`
	// Code is the stable error code.
	Code string `json:"code"`
	// Field is the dotted path of the missing field, set for ErrorTypeMissingField.
	Field string `json:"field,omitempty"`
	// Message is the human-readable error description.
	Message string `json:"message"`
	// Body is the (truncated) response body for debugging.
	Body string `json:"body,omitempty"`
	// Err is the underlying cause.
	Err error `json:"-"`
	// Timestamp is when the error occurred.
	Timestamp time.Time `json:"timestamp"`
}

// Error implements the error interface for WalletError.
func (e *WalletError) Error() string {
	switch {
	case e.Type == ErrorTypeMissingField:
		return fmt.Sprintf("%s (%s): required attribute missing: %s", e.Type, e.Code, e.Field)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s (%d/%s): %s", e.Type, e.StatusCode, e.Code, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s (%s): %s: %v", e.Type, e.Code, e.Message, e.Err)
	default:
		return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, e.Message)
	}
}

// Unwrap returns the underlying cause.
func (e *WalletError) Unwrap() error {
	return e.Err
}

// NewTransportError wraps a network-level failure.
func NewTransportError(err error) *WalletError {
	return &WalletError{
		Type:      ErrorTypeTransport,
		Code:      string(ErrCodeTransport),
		Message:   "request failed",
		Err:       err,
		Timestamp: time.Now(),
	}
}

// NewOutcomeError reports a response whose status was not classified as success.
func NewOutcomeError(outcome Outcome, statusCode int, body []byte) *WalletError {
	return &WalletError{
		Type:       ErrorTypeHTTPOutcome,
		Outcome:    outcome,
		StatusCode: statusCode,
		Code:       string(outcome.Code()),
		Message:    fmt.Sprintf("unsuccessful request: %s", outcome),
		Body:       truncate(string(body), maxBodyInError),
		Timestamp:  time.Now(),
	}
}

// NewMalformedError reports a body that could not be decoded.
func NewMalformedError(detail string, err error) *WalletError {
	return &WalletError{
		Type:      ErrorTypeMalformedJSON,
		Code:      string(ErrCodeMalformedJSON),
		Message:   detail,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// NewMissingFieldError reports an absent or wrongly shaped key.
func NewMissingFieldError(field string) *WalletError {
	return &WalletError{
		Type:      ErrorTypeMissingField,
		Code:      string(ErrCodeMissingField),
		Field:     field,
		Message:   "required attribute missing",
		Timestamp: time.Now(),
	}
}

// NewConfigError reports invalid configuration.
func NewConfigError(err error) *WalletError {
	return &WalletError{
		Type:      ErrorTypeInvalidConfig,
		Code:      string(ErrCodeInvalidConfig),
		Message:   "invalid config",
		Err:       err,
		Timestamp: time.Now(),
	}
}

// IsTransportError returns true if the error is a network-level failure.
func IsTransportError(err error) bool {
	return errorTypeOf(err) == ErrorTypeTransport
}

// IsOutcomeError returns true if the error is a non-success HTTP outcome.
func IsOutcomeError(err error) bool {
	return errorTypeOf(err) == ErrorTypeHTTPOutcome
}

// IsMalformedError returns true if the body could not be decoded.
func IsMalformedError(err error) bool {
	return errorTypeOf(err) == ErrorTypeMalformedJSON
}

// IsMissingField returns true if the error reports the given missing field.
// An empty field matches any missing field error.
func IsMissingField(err error, field string) bool {
	var wErr *WalletError
	if !errors.As(err, &wErr) || wErr.Type != ErrorTypeMissingField {
		return false
	}
	return field == "" || wErr.Field == field
}

// OutcomeOf returns the classified outcome carried by err, if any.
func OutcomeOf(err error) (Outcome, bool) {
	var wErr *WalletError
	if errors.As(err, &wErr) && wErr.Type == ErrorTypeHTTPOutcome {
		return wErr.Outcome, true
	}
	return OutcomeUndefined, false
}

func errorTypeOf(err error) ErrorType {
	var wErr *WalletError
	if errors.As(err, &wErr) {
		return wErr.Type
	}
	return ErrorTypeUnknown
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
