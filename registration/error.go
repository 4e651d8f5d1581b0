package registration

import "fmt"

type ErrorReason string

const (
	REASON_FAILED_TO_TRANSLATE_TO_DB_MODEL ErrorReason = "FAILED_TO_TRANSLATE_TO_DB_MODEL"
	REASON_FAILED_TO_WRITE                 ErrorReason = "FAILED_TO_WRITE"
	REASON_REGISTRATION_DOES_NOT_EXIST     ErrorReason = "REGISTRATION_DOES_NOT_EXIST"
	REASON_FAILED_TO_FETCH                 ErrorReason = "FAILED_TO_FETCH"
	REASON_INVALID_CURSOR                  ErrorReason = "INVALID_CURSOR"
	REASON_ASSOCIATED_EVENT_DOES_NOT_EXIST ErrorReason = "ASSOCIATED_EVENT_DOES_NOT_EXIST"
	REASON_INVALID_REQUEST                 ErrorReason = "INVALID_REQUEST"
	REASON_AMOUNT_MISMATCH                 ErrorReason = "AMOUNT_MISMATCH"
	REASON_TRANSACTION_CONFLICT            ErrorReason = "TRANSACTION_CONFLICT"
	REASON_TIMEOUT                         ErrorReason = "TIMEOUT"
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

// IsTransient reports whether repeating the same write may succeed.
func (e *Error) IsTransient() bool {
	switch e.Reason {
	case REASON_FAILED_TO_WRITE, REASON_FAILED_TO_FETCH, REASON_TRANSACTION_CONFLICT, REASON_TIMEOUT:
		return true
	default:
		return false
	}
}

func newRegistrationError(reason ErrorReason, message string, cause error) *Error {
	return &Error{
		Reason:  reason,
		Message: message,
		Cause:   cause,
	}
}

func NewFailedToWriteError(message string, cause error) *Error {
	return newRegistrationError(REASON_FAILED_TO_WRITE, message, cause)
}

func NewFailedToTranslateToDBModelError(message string, cause error) *Error {
	return newRegistrationError(REASON_FAILED_TO_TRANSLATE_TO_DB_MODEL, message, cause)
}

func NewRegistrationDoesNotExistsError(message string, cause error) *Error {
	return newRegistrationError(REASON_REGISTRATION_DOES_NOT_EXIST, message, cause)
}

func NewFailedToFetchError(message string, cause error) *Error {
	return newRegistrationError(REASON_FAILED_TO_FETCH, message, cause)
}

func NewInvalidCursorError(message string, cause error) *Error {
	return newRegistrationError(REASON_INVALID_CURSOR, message, cause)
}

func NewAssociatedEventDoesNotExistError(message string, cause error) *Error {
	return newRegistrationError(REASON_ASSOCIATED_EVENT_DOES_NOT_EXIST, message, cause)
}

func NewInvalidRequestError(message string) *Error {
	return newRegistrationError(REASON_INVALID_REQUEST, message, nil)
}

func NewAmountMismatchError(message string, cause error) *Error {
	return newRegistrationError(REASON_AMOUNT_MISMATCH, message, cause)
}

func NewTransactionConflictError(message string, cause error) *Error {
	return newRegistrationError(REASON_TRANSACTION_CONFLICT, message, cause)
}

func NewTimeoutError(message string, cause error) *Error {
	return newRegistrationError(REASON_TIMEOUT, message, cause)
}
