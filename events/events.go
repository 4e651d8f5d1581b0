package events

import (
	"context"
	"fmt"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"
)

// Event is one edition of the game. The saga only ever reads it; the
// participant counters move exclusively through the registration store's
// conditional write.
type Event struct {
	ID                         uuid.UUID
	Version                    int
	Name                       string
	StartTime                  time.Time
	RegistrationDeadline       time.Time
	PricePerPerson             *money.Money
	MaxParticipants            int
	RegisteredParticipantCount int
	RegisteredCohouseCount     int
}

type GetEventsResponse struct {
	Data        []Event
	Cursor      *string
	HasNextPage bool
}

type Repository interface {
	GetEvent(ctx context.Context, id uuid.UUID) (Event, error)
	GetEvents(ctx context.Context, limit int32, cursor *string) (GetEventsResponse, error)
	CreateEvent(ctx context.Context, event Event) error
	UpdateEvent(ctx context.Context, event Event) error
}

func (e Event) PricePerPersonCents() int64 {
	if e.PricePerPerson == nil {
		return 0
	}
	return e.PricePerPerson.Amount()
}

func (e Event) Currency() string {
	if e.PricePerPerson == nil {
		return money.EUR
	}
	return e.PricePerPerson.Currency().Code
}

func (e Event) RemainingSeats() int {
	return max(e.MaxParticipants-e.RegisteredParticipantCount, 0)
}

func (e Event) RegistrationClosed(now time.Time) bool {
	return now.After(e.RegistrationDeadline)
}

func (e Event) Validate() error {
	if e.MaxParticipants <= 0 {
		return NewInvalidEventError(fmt.Sprintf("MaxParticipants must be positive, got %d", e.MaxParticipants))
	}
	if e.PricePerPersonCents() < 0 {
		return NewInvalidEventError(fmt.Sprintf("Price per person must not be negative, got %d", e.PricePerPersonCents()))
	}
	if e.RegisteredParticipantCount < 0 || e.RegisteredParticipantCount > e.MaxParticipants {
		return NewInvalidEventError(fmt.Sprintf("RegisteredParticipantCount %d must be within 0 and %d", e.RegisteredParticipantCount, e.MaxParticipants))
	}
	if e.RegisteredCohouseCount < 0 {
		return NewInvalidEventError("RegisteredCohouseCount must not be negative")
	}
	return nil
}

// CreateEvent assigns an identity to the event and stores it with zeroed
// counters.
func CreateEvent(ctx context.Context, repo Repository, event Event) (Event, error) {
	event.ID = uuid.New()
	event.Version = 1
	event.RegisteredParticipantCount = 0
	event.RegisteredCohouseCount = 0

	if err := event.Validate(); err != nil {
		return Event{}, err
	}

	if err := repo.CreateEvent(ctx, event); err != nil {
		return Event{}, err
	}

	return event, nil
}

// UpdateEvent overwrites the editable fields of an existing event. The
// registration counters are owned by the registration store and are always
// carried over from the stored event.
func UpdateEvent(ctx context.Context, repo Repository, id uuid.UUID, updated Event) (Event, error) {
	existing, err := repo.GetEvent(ctx, id)
	if err != nil {
		return Event{}, err
	}

	updated.ID = existing.ID
	updated.Version = existing.Version + 1
	updated.RegisteredParticipantCount = existing.RegisteredParticipantCount
	updated.RegisteredCohouseCount = existing.RegisteredCohouseCount

	if err := updated.Validate(); err != nil {
		return Event{}, err
	}

	if err := repo.UpdateEvent(ctx, updated); err != nil {
		return Event{}, err
	}

	return updated, nil
}
