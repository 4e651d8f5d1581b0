package payments

import "fmt"

type ErrorReason string

const (
	REASON_GATEWAY_UNAVAILABLE ErrorReason = "GATEWAY_UNAVAILABLE"
	REASON_INVALID_REQUEST     ErrorReason = "INVALID_REQUEST"
	REASON_INTENT_NOT_FOUND    ErrorReason = "INTENT_NOT_FOUND"
	REASON_TIMEOUT             ErrorReason = "TIMEOUT"
)

type Error struct {
	Reason  ErrorReason
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s. Cause: %s", e.Reason, e.Message, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsTransient reports whether the gateway may accept the same call later.
func (e *Error) IsTransient() bool {
	return e.Reason == REASON_GATEWAY_UNAVAILABLE || e.Reason == REASON_TIMEOUT
}

func newPaymentsError(reason ErrorReason, message string, cause error) *Error {
	return &Error{
		Reason:  reason,
		Message: message,
		Cause:   cause,
	}
}

func NewGatewayUnavailableError(message string, cause error) *Error {
	return newPaymentsError(REASON_GATEWAY_UNAVAILABLE, message, cause)
}

func NewInvalidRequestError(message string, cause error) *Error {
	return newPaymentsError(REASON_INVALID_REQUEST, message, cause)
}

func NewIntentNotFoundError(message string, cause error) *Error {
	return newPaymentsError(REASON_INTENT_NOT_FOUND, message, cause)
}

func NewTimeoutError(message string, cause error) *Error {
	return newPaymentsError(REASON_TIMEOUT, message, cause)
}
