package saga

import (
	"fmt"
	"time"

	"github.com/cohouse-dinner/game-registration/registration"
	"github.com/google/uuid"
)

// State is the durable record of one registration attempt, keyed by the
// client generated correlation id. Only the saga writes it.
type State struct {
	CorrelationID string
	Version       int

	EventID            uuid.UUID
	CohouseID          string
	AttendingMemberIDs []string
	AverageAge         int
	Category           registration.Category
	ContactEmail       string

	Phase Phase
	// FailedAt is the phase a FailedRetryable saga resumes from.
	FailedAt Phase

	AmountCents        int64
	Currency           string
	PaymentIntentID    string
	ClientSecret       string
	CustomerID         string
	EphemeralKeySecret string

	PaymentCaptured     bool
	CapturedAmountCents int64

	LastError   string
	ErrorReason ErrorReason
	Attempt     int

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
	// ExpiresAt is set once terminal. The record is kept until then for
	// idempotent replays.
	ExpiresAt *time.Time
}

type PaymentSheet struct {
	PaymentIntentID    string
	ClientSecret       string
	CustomerID         string
	EphemeralKeySecret string
	AmountCents        int64
	Currency           string
}

type RecoveryAction string

const (
	RECOVERY_NONE               RecoveryAction = "NONE"
	RECOVERY_RETRY_PAYMENT      RecoveryAction = "RETRY_PAYMENT"
	RECOVERY_RETRY_REGISTRATION RecoveryAction = "RETRY_REGISTRATION"
	RECOVERY_RESTART            RecoveryAction = "RESTART"
	RECOVERY_CONTACT_SUPPORT    RecoveryAction = "CONTACT_SUPPORT"
)

// ClientOutcome is what the payment UI reports. The gateway has the final
// say.
type ClientOutcome string

const (
	CLIENT_CONFIRMED ClientOutcome = "confirmed"
	CLIENT_CANCELED  ClientOutcome = "canceled"
	CLIENT_FAILED    ClientOutcome = "failed"
	// Used when resolving a saga without fresh input from the UI.
	CLIENT_UNKNOWN ClientOutcome = "unknown"
)

func ParseClientOutcome(s string) (ClientOutcome, error) {
	switch ClientOutcome(s) {
	case CLIENT_CONFIRMED, CLIENT_CANCELED, CLIENT_FAILED:
		return ClientOutcome(s), nil
	default:
		return "", fmt.Errorf("unknown payment outcome %q", s)
	}
}

func newState(correlationID string, req registration.Request, now time.Time) State {
	return State{
		CorrelationID:      correlationID,
		Version:            1,
		EventID:            req.EventID,
		CohouseID:          req.CohouseID,
		AttendingMemberIDs: req.AttendingMemberIDs,
		AverageAge:         req.AverageAge,
		Category:           req.Category,
		ContactEmail:       req.ContactEmail,
		Phase:              CREATED,
		Attempt:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func (s State) Request() registration.Request {
	return registration.Request{
		EventID:            s.EventID,
		CohouseID:          s.CohouseID,
		AttendingMemberIDs: s.AttendingMemberIDs,
		AverageAge:         s.AverageAge,
		Category:           s.Category,
		ContactEmail:       s.ContactEmail,
	}
}

// EffectivePhase is the phase a retry resumes from.
func (s State) EffectivePhase() Phase {
	if s.Phase == FAILED_RETRYABLE {
		return s.FailedAt
	}
	return s.Phase
}

func (s State) progress() int {
	return s.EffectivePhase().Rank()
}

func (s State) HasPaymentSheet() bool {
	return s.PaymentIntentID != ""
}

func (s State) PaymentSheet() PaymentSheet {
	return PaymentSheet{
		PaymentIntentID:    s.PaymentIntentID,
		ClientSecret:       s.ClientSecret,
		CustomerID:         s.CustomerID,
		EphemeralKeySecret: s.EphemeralKeySecret,
		AmountCents:        s.AmountCents,
		Currency:           s.Currency,
	}
}

// RecoveryAction tells the caller what it can do next. A captured payment
// never leads to a new payment being asked for.
func (s State) RecoveryAction() RecoveryAction {
	switch s.Phase {
	case FAILED_TERMINAL:
		if s.PaymentCaptured {
			return RECOVERY_CONTACT_SUPPORT
		}
		return RECOVERY_RESTART
	case FAILED_RETRYABLE:
		switch {
		case s.FailedAt >= PAYMENT_CONFIRMED:
			return RECOVERY_RETRY_REGISTRATION
		case s.FailedAt >= INTENT_READY:
			return RECOVERY_RETRY_PAYMENT
		default:
			return RECOVERY_RESTART
		}
	default:
		return RECOVERY_NONE
	}
}

// Record is the ledger entry this saga writes once the payment is captured.
func (s State) Record(now time.Time) registration.Record {
	return registration.Record{
		EventID:            s.EventID,
		CohouseID:          s.CohouseID,
		AttendingMemberIDs: s.AttendingMemberIDs,
		AverageAge:         s.AverageAge,
		Category:           s.Category,
		PaymentIntentID:    s.PaymentIntentID,
		AmountPaidCents:    s.CapturedAmountCents,
		Currency:           s.Currency,
		CreatedAt:          now,
	}
}

// checkProgress rejects writes that would move a saga backwards.
func checkProgress(prev, next State) error {
	if prev.Phase.IsTerminal() {
		return NewInvalidTransitionError(prev.CorrelationID, fmt.Sprintf("Saga is already %s", prev.Phase))
	}
	switch next.Phase {
	case FAILED_TERMINAL:
		return nil
	case CANCELED:
		if prev.progress() >= REGISTERING.Rank() {
			return NewInvalidTransitionError(prev.CorrelationID, "Saga can not be canceled once registering")
		}
		return nil
	}
	if next.progress() < prev.progress() {
		return NewInvalidTransitionError(prev.CorrelationID, fmt.Sprintf("Saga can not move back from %s to %s", prev.EffectivePhase(), next.EffectivePhase()))
	}
	if prev.PaymentIntentID != "" && next.PaymentIntentID != prev.PaymentIntentID {
		return NewInvalidTransitionError(prev.CorrelationID, "Payment intent can not be replaced once assigned")
	}
	return nil
}
