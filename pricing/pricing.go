// Package pricing is the single place where the charge for a registration
// is computed.
package pricing

import (
	"fmt"
	"math"

	"github.com/Rhymond/go-money"
)

// ComputeAmount returns the total charge in minor units for participantCount
// people at pricePerPersonCents each.
func ComputeAmount(participantCount int, pricePerPersonCents int64) (int64, error) {
	total, err := Compute(participantCount, money.New(pricePerPersonCents, money.EUR))
	if err != nil {
		return 0, err
	}
	return total.Amount(), nil
}

// Compute multiplies the per person price, keeping its currency.
func Compute(participantCount int, pricePerPerson *money.Money) (*money.Money, error) {
	if participantCount <= 0 {
		return nil, newPricingError(REASON_INVALID_PARTICIPANT_COUNT, fmt.Sprintf("Participant count must be positive, got %d", participantCount))
	}
	if pricePerPerson == nil || pricePerPerson.IsNegative() {
		return nil, newPricingError(REASON_INVALID_PRICE, "Price per person must be set and not negative")
	}
	if pricePerPerson.Amount() > 0 && int64(participantCount) > math.MaxInt64/pricePerPerson.Amount() {
		return nil, newPricingError(REASON_AMOUNT_OVERFLOW, fmt.Sprintf("%d participants at %d overflows", participantCount, pricePerPerson.Amount()))
	}

	return pricePerPerson.Multiply(int64(participantCount)), nil
}

// VerifyCaptured recomputes the expected charge and compares it with what the
// payment gateway reports as captured.
func VerifyCaptured(participantCount int, pricePerPersonCents int64, capturedCents int64) error {
	expected, err := ComputeAmount(participantCount, pricePerPersonCents)
	if err != nil {
		return err
	}
	if expected != capturedCents {
		return NewAmountMismatchError(expected, capturedCents)
	}
	return nil
}
