package saga

import "fmt"

type ErrorReason string

const (
	REASON_VALIDATION_FAILED            ErrorReason = "VALIDATION_FAILED"
	REASON_DEADLINE_PASSED              ErrorReason = "DEADLINE_PASSED"
	REASON_EMPTY_SELECTION              ErrorReason = "EMPTY_SELECTION"
	REASON_AMOUNT_MISMATCH              ErrorReason = "AMOUNT_MISMATCH"
	REASON_EVENT_FULL                   ErrorReason = "EVENT_FULL"
	REASON_REQUEST_MISMATCH             ErrorReason = "REQUEST_MISMATCH"
	REASON_GATEWAY_ERROR                ErrorReason = "GATEWAY_ERROR"
	REASON_PAYMENT_FAILED               ErrorReason = "PAYMENT_FAILED"
	REASON_PAYMENT_PENDING              ErrorReason = "PAYMENT_PENDING"
	REASON_TRANSIENT_ERROR              ErrorReason = "TRANSIENT_ERROR"
	REASON_CAPACITY_EXCEEDED            ErrorReason = "CAPACITY_EXCEEDED"
	REASON_ALREADY_REGISTERED_CONFLICT  ErrorReason = "ALREADY_REGISTERED_CONFLICT"
	REASON_ALREADY_IN_PROGRESS          ErrorReason = "ALREADY_IN_PROGRESS"
	REASON_SAGA_DOES_NOT_EXIST          ErrorReason = "SAGA_DOES_NOT_EXIST"
	REASON_SAGA_ALREADY_EXISTS          ErrorReason = "SAGA_ALREADY_EXISTS"
	REASON_INVALID_TRANSITION           ErrorReason = "INVALID_TRANSITION"
	REASON_STALE_STATE                  ErrorReason = "STALE_STATE"
	REASON_EVENT_DOES_NOT_EXIST         ErrorReason = "EVENT_DOES_NOT_EXIST"
	REASON_CANCELED_BY_OPERATOR         ErrorReason = "CANCELED_BY_OPERATOR"
	REASON_INTERNAL_ERROR               ErrorReason = "INTERNAL_ERROR"
	REASON_FAILED_TO_TRANSLATE_DB_MODEL ErrorReason = "FAILED_TO_TRANSLATE_DB_MODEL"
)

// Error is what every saga command returns on failure. Retryable tells the
// caller whether RetrySaga with the same correlation id can make progress.
type Error struct {
	Reason        ErrorReason
	Message       string
	Retryable     bool
	CorrelationID string
	Cause         error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s. Cause: %s", e.Reason, e.Message, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsValidation reports whether the request itself was rejected.
func (e *Error) IsValidation() bool {
	switch e.Reason {
	case REASON_VALIDATION_FAILED, REASON_DEADLINE_PASSED, REASON_EMPTY_SELECTION,
		REASON_AMOUNT_MISMATCH, REASON_EVENT_FULL, REASON_REQUEST_MISMATCH:
		return true
	default:
		return false
	}
}

func newSagaError(reason ErrorReason, correlationID, message string, retryable bool, cause error) *Error {
	return &Error{
		Reason:        reason,
		Message:       message,
		Retryable:     retryable,
		CorrelationID: correlationID,
		Cause:         cause,
	}
}

func NewValidationError(reason ErrorReason, correlationID, message string, cause error) *Error {
	return newSagaError(reason, correlationID, message, false, cause)
}

func NewGatewayError(correlationID, message string, retryable bool, cause error) *Error {
	return newSagaError(REASON_GATEWAY_ERROR, correlationID, message, retryable, cause)
}

func NewPaymentFailedError(correlationID, message string) *Error {
	return newSagaError(REASON_PAYMENT_FAILED, correlationID, message, true, nil)
}

func NewPaymentPendingError(correlationID, message string) *Error {
	return newSagaError(REASON_PAYMENT_PENDING, correlationID, message, true, nil)
}

func NewTransientError(correlationID, message string, cause error) *Error {
	return newSagaError(REASON_TRANSIENT_ERROR, correlationID, message, true, cause)
}

func NewCapacityExceededError(correlationID, message string) *Error {
	return newSagaError(REASON_CAPACITY_EXCEEDED, correlationID, message, false, nil)
}

func NewAlreadyRegisteredConflictError(correlationID, message string) *Error {
	return newSagaError(REASON_ALREADY_REGISTERED_CONFLICT, correlationID, message, false, nil)
}

func NewAlreadyInProgressError(correlationID string) *Error {
	return newSagaError(REASON_ALREADY_IN_PROGRESS, correlationID, fmt.Sprintf("Saga %q is already being processed", correlationID), false, nil)
}

func NewSagaDoesNotExistError(correlationID string, cause error) *Error {
	return newSagaError(REASON_SAGA_DOES_NOT_EXIST, correlationID, fmt.Sprintf("Saga %q does not exist", correlationID), false, cause)
}

func NewSagaAlreadyExistsError(correlationID string, cause error) *Error {
	return newSagaError(REASON_SAGA_ALREADY_EXISTS, correlationID, fmt.Sprintf("Saga %q already exists", correlationID), false, cause)
}

func NewInvalidTransitionError(correlationID, message string) *Error {
	return newSagaError(REASON_INVALID_TRANSITION, correlationID, message, false, nil)
}

// NewStaleStateError is returned when another writer moved the saga first.
// The caller may re-read and retry.
func NewStaleStateError(correlationID string, cause error) *Error {
	return newSagaError(REASON_STALE_STATE, correlationID, fmt.Sprintf("Saga %q was modified concurrently", correlationID), true, cause)
}

func NewEventDoesNotExistError(correlationID, message string, cause error) *Error {
	return newSagaError(REASON_EVENT_DOES_NOT_EXIST, correlationID, message, false, cause)
}

func NewInternalError(correlationID, message string, cause error) *Error {
	return newSagaError(REASON_INTERNAL_ERROR, correlationID, message, false, cause)
}

func NewFailedToTranslateDBModelError(correlationID string, cause error) *Error {
	return newSagaError(REASON_FAILED_TO_TRANSLATE_DB_MODEL, correlationID, fmt.Sprintf("Saga %q could not be translated", correlationID), false, cause)
}
