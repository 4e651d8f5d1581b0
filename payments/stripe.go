package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v85"
)

var _ Gateway = &StripeGateway{}

type stripeIntentService interface {
	Create(ctx context.Context, params *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error)
	Retrieve(ctx context.Context, id string, params *stripe.PaymentIntentRetrieveParams) (*stripe.PaymentIntent, error)
}

type stripeCustomerService interface {
	Create(ctx context.Context, params *stripe.CustomerCreateParams) (*stripe.Customer, error)
}

type stripeEphemeralKeyService interface {
	Create(ctx context.Context, params *stripe.EphemeralKeyCreateParams) (*stripe.EphemeralKey, error)
}

// StripeGateway issues PaymentSheet style intents: a customer, an ephemeral
// key for that customer and a payment intent.
type StripeGateway struct {
	intents       stripeIntentService
	customers     stripeCustomerService
	ephemeralKeys stripeEphemeralKeyService
}

func NewStripeGateway(client *stripe.Client) *StripeGateway {
	return &StripeGateway{
		intents:       client.V1PaymentIntents,
		customers:     client.V1Customers,
		ephemeralKeys: client.V1EphemeralKeys,
	}
}

func (g *StripeGateway) CreateIntent(ctx context.Context, params IntentParams) (Intent, error) {
	if params.AmountCents <= 0 {
		return Intent{}, NewInvalidRequestError(fmt.Sprintf("Amount must be positive, got %d", params.AmountCents), nil)
	}
	metadata := params.Metadata.toMap()

	customerParams := &stripe.CustomerCreateParams{
		Description: stripe.String(fmt.Sprintf("Cohouse %s", params.Metadata.CohouseID)),
		Metadata:    metadata,
	}
	if params.IdempotencyKey != "" {
		customerParams.SetIdempotencyKey(params.IdempotencyKey + ":customer")
	}
	customer, err := g.customers.Create(ctx, customerParams)
	if err != nil {
		return Intent{}, translateStripeError("Failed to create customer", err)
	}

	ephemeralKey, err := g.ephemeralKeys.Create(ctx, &stripe.EphemeralKeyCreateParams{
		Customer:      stripe.String(customer.ID),
		StripeVersion: stripe.String(stripe.APIVersion),
	})
	if err != nil {
		return Intent{}, translateStripeError("Failed to create ephemeral key", err)
	}

	intentParams := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(params.AmountCents),
		Currency: stripe.String(strings.ToLower(params.Currency)),
		Customer: stripe.String(customer.ID),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: metadata,
	}
	if params.IdempotencyKey != "" {
		intentParams.SetIdempotencyKey(params.IdempotencyKey + ":intent")
	}
	pi, err := g.intents.Create(ctx, intentParams)
	if err != nil {
		return Intent{}, translateStripeError("Failed to create payment intent", err)
	}

	return Intent{
		PaymentIntentID:    pi.ID,
		ClientSecret:       pi.ClientSecret,
		CustomerID:         customer.ID,
		EphemeralKeySecret: ephemeralKey.Secret,
		AmountCents:        pi.Amount,
		Currency:           strings.ToUpper(string(pi.Currency)),
		Status:             stripeStatusToStatus(pi),
	}, nil
}

func (g *StripeGateway) ReportOutcome(ctx context.Context, paymentIntentID string) (OutcomeReport, error) {
	pi, err := g.intents.Retrieve(ctx, paymentIntentID, &stripe.PaymentIntentRetrieveParams{})
	if err != nil {
		return OutcomeReport{}, translateStripeError(fmt.Sprintf("Failed to retrieve payment intent %q", paymentIntentID), err)
	}

	report := OutcomeReport{
		PaymentIntentID: pi.ID,
		Outcome:         stripeStatusToOutcome(pi),
	}
	if report.Outcome == OUTCOME_CAPTURED {
		report.AmountCapturedCents = pi.AmountReceived
	}
	if pi.LastPaymentError != nil {
		report.FailureMessage = pi.LastPaymentError.Msg
	}

	return report, nil
}

func stripeStatusToOutcome(pi *stripe.PaymentIntent) Outcome {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return OUTCOME_CAPTURED
	case stripe.PaymentIntentStatusCanceled:
		return OUTCOME_CANCELED
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		// Stripe moves a declined intent back to requires_payment_method
		if pi.LastPaymentError != nil {
			return OUTCOME_FAILED
		}
		return OUTCOME_NOT_ATTEMPTED
	case stripe.PaymentIntentStatusRequiresConfirmation, stripe.PaymentIntentStatusRequiresAction:
		return OUTCOME_NOT_ATTEMPTED
	default:
		return OUTCOME_PROCESSING
	}
}

func stripeStatusToStatus(pi *stripe.PaymentIntent) Status {
	switch stripeStatusToOutcome(pi) {
	case OUTCOME_CAPTURED:
		return STATUS_SUCCEEDED
	case OUTCOME_CANCELED:
		return STATUS_CANCELED
	case OUTCOME_FAILED:
		return STATUS_FAILED
	default:
		return STATUS_PENDING
	}
}

func translateStripeError(message string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError(message, err)
	}

	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return NewGatewayUnavailableError(message, err)
	}

	switch {
	case stripeErr.HTTPStatusCode == http.StatusNotFound:
		return NewIntentNotFoundError(message, err)
	case stripeErr.HTTPStatusCode == http.StatusConflict,
		stripeErr.HTTPStatusCode == http.StatusTooManyRequests,
		stripeErr.HTTPStatusCode >= http.StatusInternalServerError:
		return NewGatewayUnavailableError(message, err)
	case stripeErr.HTTPStatusCode >= http.StatusBadRequest:
		return NewInvalidRequestError(message, err)
	default:
		return NewGatewayUnavailableError(message, err)
	}
}
