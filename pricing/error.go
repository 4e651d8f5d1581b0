package pricing

import "fmt"

type ErrorReason string

const (
	REASON_INVALID_PARTICIPANT_COUNT ErrorReason = "INVALID_PARTICIPANT_COUNT"
	REASON_INVALID_PRICE             ErrorReason = "INVALID_PRICE"
	REASON_AMOUNT_OVERFLOW           ErrorReason = "AMOUNT_OVERFLOW"
	REASON_AMOUNT_MISMATCH           ErrorReason = "AMOUNT_MISMATCH"
)

type Error struct {
	Reason  ErrorReason
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func newPricingError(reason ErrorReason, message string) *Error {
	return &Error{
		Reason:  reason,
		Message: message,
	}
}

func NewAmountMismatchError(expected, captured int64) *Error {
	return newPricingError(REASON_AMOUNT_MISMATCH, fmt.Sprintf("Expected %d cents to be captured, gateway captured %d", expected, captured))
}
