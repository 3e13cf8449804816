package carrier

import (
	"errors"
	"fmt"
)

// Error codes carried by CarrierError.
const (
	CodeUnknownCarrier    = "UNKNOWN_CARRIER"
	CodeDisabled          = "CARRIER_DISABLED"
	CodeUnsupported       = "UNSUPPORTED_OPERATION"
	CodeCredentialMissing = "CREDENTIAL_MISSING"
	CodeUpstreamFailed    = "UPSTREAM_REQUEST_FAILED"
	CodeRejected          = "REQUEST_REJECTED"
)

// CarrierError represents an error from a parcel carrier integration.
type CarrierError struct {
	Carrier    string
	Code       string
	Message    string
	StatusCode int
	Retryable  bool
	Cause      error
}

// Error implements the error interface.
func (e *CarrierError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error (%s): %s: %v", e.Carrier, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error (%s): %s", e.Carrier, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *CarrierError) Unwrap() error {
	return e.Cause
}

// Is matches another CarrierError with the same code, or the sentinel for the code.
func (e *CarrierError) Is(target error) bool {
	if t, ok := target.(*CarrierError); ok {
		return e.Code == t.Code
	}
	if sentinel, ok := sentinels[e.Code]; ok {
		return target == sentinel
	}
	return false
}

// NewCarrierError creates a new CarrierError.
func NewCarrierError(carrier, code, message string) *CarrierError {
	return &CarrierError{
		Carrier: carrier,
		Code:    code,
		Message: message,
	}
}

// WithCause adds a cause to the error.
func (e *CarrierError) WithCause(err error) *CarrierError {
	e.Cause = err
	return e
}

// WithStatusCode adds an HTTP status code to the error.
func (e *CarrierError) WithStatusCode(code int) *CarrierError {
	e.StatusCode = code
	return e
}

// WithRetryable marks the error as retryable.
func (e *CarrierError) WithRetryable(retryable bool) *CarrierError {
	e.Retryable = retryable
	return e
}

// Sentinel errors for carrier integration failures.
var (
	// ErrUnknownCarrier indicates the identifier is not registered.
	ErrUnknownCarrier = errors.New("unknown carrier")

	// ErrCarrierDisabled indicates the carrier is registered but not enabled for this installation.
	ErrCarrierDisabled = errors.New("carrier disabled")

	// ErrUnsupportedOperation indicates the carrier does not implement the operation.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrCredentialMissing indicates the API key required by the operation is absent.
	ErrCredentialMissing = errors.New("credential missing")

	// ErrUpstreamRequestFailed indicates a transport error or malformed carrier response.
	ErrUpstreamRequestFailed = errors.New("upstream request failed")

	// ErrRequestRejected indicates the carrier answered but refused the request.
	ErrRequestRejected = errors.New("request rejected by carrier")
)

var sentinels = map[string]error{
	CodeUnknownCarrier:    ErrUnknownCarrier,
	CodeDisabled:          ErrCarrierDisabled,
	CodeUnsupported:       ErrUnsupportedOperation,
	CodeCredentialMissing: ErrCredentialMissing,
	CodeUpstreamFailed:    ErrUpstreamRequestFailed,
	CodeRejected:          ErrRequestRejected,
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var carrierErr *CarrierError
	if errors.As(err, &carrierErr) {
		return carrierErr.Retryable
	}
	return errors.Is(err, ErrUpstreamRequestFailed)
}
