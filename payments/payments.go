package payments

import (
	"context"

	"github.com/google/uuid"
)

type Status string

const (
	STATUS_PENDING   Status = "pending"
	STATUS_SUCCEEDED Status = "succeeded"
	STATUS_CANCELED  Status = "canceled"
	STATUS_FAILED    Status = "failed"
)

// Outcome is the gateway's authoritative view of a payment intent.
type Outcome string

const (
	OUTCOME_CAPTURED Outcome = "captured"
	OUTCOME_CANCELED Outcome = "canceled"
	OUTCOME_FAILED   Outcome = "failed"
	// No payment was attempted on the intent yet.
	OUTCOME_NOT_ATTEMPTED Outcome = "not_attempted"
	// A payment was submitted and may still be captured.
	OUTCOME_PROCESSING Outcome = "processing"
)

// Intent is an issued payment intent. Its amount never changes once issued.
type Intent struct {
	PaymentIntentID    string
	ClientSecret       string
	CustomerID         string
	EphemeralKeySecret string
	AmountCents        int64
	Currency           string
	Status             Status
}

type Metadata struct {
	EventID       uuid.UUID
	CohouseID     string
	CorrelationID string
}

func (m Metadata) toMap() map[string]string {
	return map[string]string{
		"eventId":       m.EventID.String(),
		"cohouseId":     m.CohouseID,
		"correlationId": m.CorrelationID,
	}
}

type IntentParams struct {
	AmountCents int64
	Currency    string
	// Replays with the same key return the intent created by the first call.
	IdempotencyKey string
	Metadata       Metadata
}

type OutcomeReport struct {
	PaymentIntentID     string
	Outcome             Outcome
	AmountCapturedCents int64
	FailureMessage      string
}

type Gateway interface {
	CreateIntent(ctx context.Context, params IntentParams) (Intent, error)
	ReportOutcome(ctx context.Context, paymentIntentID string) (OutcomeReport, error)
}
