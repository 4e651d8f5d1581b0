package saga

import (
	"context"

	"github.com/cohouse-dinner/game-registration/events"
)

// Notifier is told about outcomes people need to hear about. Its errors are
// logged and never change the saga outcome.
type Notifier interface {
	RegistrationConfirmed(ctx context.Context, state State, event events.Event) error
	RefundRequired(ctx context.Context, state State, reason ErrorReason) error
}

type NopNotifier struct{}

func (NopNotifier) RegistrationConfirmed(ctx context.Context, state State, event events.Event) error {
	return nil
}

func (NopNotifier) RefundRequired(ctx context.Context, state State, reason ErrorReason) error {
	return nil
}
