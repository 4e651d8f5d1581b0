package payments

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var _ Gateway = &LocalGateway{}

// LocalGateway stands in for the payment processor during local development.
// Every intent reports as captured unless Settle says otherwise.
type LocalGateway struct {
	mu       sync.Mutex
	intents  map[string]Intent
	byKey    map[string]string
	outcomes map[string]Outcome
}

func NewLocalGateway() *LocalGateway {
	return &LocalGateway{
		intents:  map[string]Intent{},
		byKey:    map[string]string{},
		outcomes: map[string]Outcome{},
	}
}

func (g *LocalGateway) CreateIntent(ctx context.Context, params IntentParams) (Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if id, ok := g.byKey[params.IdempotencyKey]; ok && params.IdempotencyKey != "" {
		return g.intents[id], nil
	}

	id := fmt.Sprintf("pi_local_%s", uuid.NewString())
	intent := Intent{
		PaymentIntentID:    id,
		ClientSecret:       id + "_secret",
		CustomerID:         fmt.Sprintf("cus_local_%s", params.Metadata.CohouseID),
		EphemeralKeySecret: fmt.Sprintf("ek_local_%s", uuid.NewString()),
		AmountCents:        params.AmountCents,
		Currency:           params.Currency,
		Status:             STATUS_PENDING,
	}
	g.intents[id] = intent
	if params.IdempotencyKey != "" {
		g.byKey[params.IdempotencyKey] = id
	}

	return intent, nil
}

func (g *LocalGateway) ReportOutcome(ctx context.Context, paymentIntentID string) (OutcomeReport, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	intent, ok := g.intents[paymentIntentID]
	if !ok {
		return OutcomeReport{}, NewIntentNotFoundError(fmt.Sprintf("Payment intent %q not found", paymentIntentID), nil)
	}

	outcome, ok := g.outcomes[paymentIntentID]
	if !ok {
		outcome = OUTCOME_CAPTURED
	}

	report := OutcomeReport{PaymentIntentID: paymentIntentID, Outcome: outcome}
	if outcome == OUTCOME_CAPTURED {
		report.AmountCapturedCents = intent.AmountCents
	}
	return report, nil
}

// Settle fixes the outcome reported for an intent.
func (g *LocalGateway) Settle(paymentIntentID string, outcome Outcome) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.outcomes[paymentIntentID] = outcome
}
