// Package notify turns saga outcomes into emails.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cohouse-dinner/game-registration/events"
	"github.com/cohouse-dinner/game-registration/mail"
	"github.com/cohouse-dinner/game-registration/registration"
	"github.com/cohouse-dinner/game-registration/saga"
)

var _ saga.Notifier = &Notifier{}

type Notifier struct {
	sender        mail.Sender
	fromAddress   string
	operatorEmail string
	logger        *slog.Logger
}

func NewNotifier(sender mail.Sender, fromAddress, operatorEmail string, logger *slog.Logger) *Notifier {
	return &Notifier{
		sender:        sender,
		fromAddress:   fromAddress,
		operatorEmail: operatorEmail,
		logger:        logger,
	}
}

// RegistrationConfirmed mails the cohouse. Requests without a contact address
// are skipped.
func (n *Notifier) RegistrationConfirmed(ctx context.Context, state saga.State, event events.Event) error {
	if state.ContactEmail == "" {
		n.logger.DebugContext(ctx, "no contact email, skipping confirmation", slog.String("correlationId", state.CorrelationID))
		return nil
	}

	record := state.Record(state.UpdatedAt)
	email, err := registration.ConfirmationEmail(n.fromAddress, state.ContactEmail, event, record)
	if err != nil {
		return fmt.Errorf("failed to build confirmation email: %w", err)
	}

	return n.sender.SendEmail(ctx, email)
}

// RefundRequired alerts the operator about a captured payment that has no
// registration behind it.
func (n *Notifier) RefundRequired(ctx context.Context, state saga.State, reason saga.ErrorReason) error {
	if n.operatorEmail == "" {
		n.logger.WarnContext(ctx, "no operator email configured, refund alert not sent",
			slog.String("correlationId", state.CorrelationID),
			slog.String("paymentIntentId", state.PaymentIntentID))
		return nil
	}

	email, err := registration.RefundAlertEmail(n.fromAddress, n.operatorEmail, registration.RefundAlert{
		CorrelationID:   state.CorrelationID,
		EventID:         state.EventID,
		CohouseID:       state.CohouseID,
		PaymentIntentID: state.PaymentIntentID,
		AmountCents:     state.CapturedAmountCents,
		Currency:        state.Currency,
		Reason:          string(reason),
	})
	if err != nil {
		return fmt.Errorf("failed to build refund alert: %w", err)
	}

	return n.sender.SendEmail(ctx, email)
}
