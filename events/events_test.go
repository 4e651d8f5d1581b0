package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepository struct {
	GetEventFunc    func(ctx context.Context, id uuid.UUID) (Event, error)
	GetEventsFunc   func(ctx context.Context, limit int32, cursor *string) (GetEventsResponse, error)
	CreateEventFunc func(ctx context.Context, event Event) error
	UpdateEventFunc func(ctx context.Context, event Event) error
}

func (m *mockRepository) GetEvent(ctx context.Context, id uuid.UUID) (Event, error) {
	return m.GetEventFunc(ctx, id)
}

func (m *mockRepository) GetEvents(ctx context.Context, limit int32, cursor *string) (GetEventsResponse, error) {
	return m.GetEventsFunc(ctx, limit, cursor)
}

func (m *mockRepository) CreateEvent(ctx context.Context, event Event) error {
	return m.CreateEventFunc(ctx, event)
}

func (m *mockRepository) UpdateEvent(ctx context.Context, event Event) error {
	return m.UpdateEventFunc(ctx, event)
}

func TestEventHelpers(t *testing.T) {
	t.Run("price and currency come from the money value", func(t *testing.T) {
		e := Event{PricePerPerson: money.New(500, money.EUR)}
		assert.Equal(t, int64(500), e.PricePerPersonCents())
		assert.Equal(t, "EUR", e.Currency())
	})

	t.Run("a free event has zero price", func(t *testing.T) {
		e := Event{}
		assert.Equal(t, int64(0), e.PricePerPersonCents())
		assert.Equal(t, "EUR", e.Currency())
	})

	t.Run("remaining seats never goes negative", func(t *testing.T) {
		assert.Equal(t, 4, Event{MaxParticipants: 10, RegisteredParticipantCount: 6}.RemainingSeats())
		assert.Equal(t, 0, Event{MaxParticipants: 10, RegisteredParticipantCount: 12}.RemainingSeats())
	})

	t.Run("registration closes after the deadline", func(t *testing.T) {
		deadline := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
		e := Event{RegistrationDeadline: deadline}
		assert.False(t, e.RegistrationClosed(deadline))
		assert.True(t, e.RegistrationClosed(deadline.Add(time.Second)))
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		valid bool
	}{
		{"valid event", Event{MaxParticipants: 10, PricePerPerson: money.New(500, money.EUR)}, true},
		{"zero capacity", Event{MaxParticipants: 0}, false},
		{"negative price", Event{MaxParticipants: 10, PricePerPerson: money.New(-1, money.EUR)}, false},
		{"over capacity", Event{MaxParticipants: 10, RegisteredParticipantCount: 11}, false},
		{"negative cohouse count", Event{MaxParticipants: 10, RegisteredCohouseCount: -1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			var eventErr *Error
			require.ErrorAs(t, err, &eventErr)
			assert.Equal(t, REASON_INVALID_EVENT, eventErr.Reason)
		})
	}
}

func TestCreateEvent(t *testing.T) {
	t.Run("assigns id and first version", func(t *testing.T) {
		var stored Event
		repo := &mockRepository{
			CreateEventFunc: func(ctx context.Context, event Event) error {
				stored = event
				return nil
			},
		}

		result, err := CreateEvent(context.Background(), repo, Event{
			Name:                       "Spring dinner",
			MaxParticipants:            60,
			RegisteredParticipantCount: 12,
			PricePerPerson:             money.New(500, money.EUR),
		})

		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, result.ID)
		assert.Equal(t, 1, result.Version)
		assert.Equal(t, 0, result.RegisteredParticipantCount)
		assert.Equal(t, result, stored)
	})

	t.Run("invalid event is not stored", func(t *testing.T) {
		repo := &mockRepository{}

		_, err := CreateEvent(context.Background(), repo, Event{Name: "No seats"})

		var eventErr *Error
		require.ErrorAs(t, err, &eventErr)
		assert.Equal(t, REASON_INVALID_EVENT, eventErr.Reason)
	})
}

func TestUpdateEvent(t *testing.T) {
	eventID := uuid.New()
	deadline := time.Now().Add(12 * time.Hour)

	t.Run("successful update", func(t *testing.T) {
		existingEvent := Event{
			ID:                         eventID,
			Version:                    1,
			Name:                       "Original Event",
			MaxParticipants:            40,
			RegisteredParticipantCount: 25,
			RegisteredCohouseCount:     6,
		}

		updatedEventData := Event{
			Name:                 "Updated Event Name",
			RegistrationDeadline: deadline,
			PricePerPerson:       money.New(700, money.EUR),
			MaxParticipants:      50,
		}

		repo := &mockRepository{
			GetEventFunc: func(ctx context.Context, id uuid.UUID) (Event, error) {
				assert.Equal(t, eventID, id)
				return existingEvent, nil
			},
			UpdateEventFunc: func(ctx context.Context, event Event) error {
				assert.Equal(t, eventID, event.ID)
				assert.Equal(t, 2, event.Version)
				assert.Equal(t, "Updated Event Name", event.Name)
				assert.Equal(t, deadline, event.RegistrationDeadline)
				assert.Equal(t, int64(700), event.PricePerPersonCents())
				assert.Equal(t, 50, event.MaxParticipants)
				assert.Equal(t, 25, event.RegisteredParticipantCount)
				assert.Equal(t, 6, event.RegisteredCohouseCount)
				return nil
			},
		}

		result, err := UpdateEvent(context.Background(), repo, eventID, updatedEventData)

		assert.NoError(t, err)
		assert.Equal(t, eventID, result.ID)
		assert.Equal(t, 2, result.Version)
		assert.Equal(t, 25, result.RegisteredParticipantCount)
	})

	t.Run("event does not exist", func(t *testing.T) {
		repo := &mockRepository{
			GetEventFunc: func(ctx context.Context, id uuid.UUID) (Event, error) {
				return Event{}, &Error{Reason: REASON_EVENT_DOES_NOT_EXIST}
			},
		}

		result, err := UpdateEvent(context.Background(), repo, eventID, Event{Name: "Test Event"})

		assert.Error(t, err)
		assert.Equal(t, Event{}, result)
		var eventErr *Error
		assert.True(t, errors.As(err, &eventErr))
		assert.Equal(t, REASON_EVENT_DOES_NOT_EXIST, eventErr.Reason)
	})

	t.Run("capacity cannot drop below registered participants", func(t *testing.T) {
		repo := &mockRepository{
			GetEventFunc: func(ctx context.Context, id uuid.UUID) (Event, error) {
				return Event{ID: eventID, Version: 3, MaxParticipants: 40, RegisteredParticipantCount: 30}, nil
			},
		}

		_, err := UpdateEvent(context.Background(), repo, eventID, Event{Name: "Shrunk", MaxParticipants: 20})

		var eventErr *Error
		require.ErrorAs(t, err, &eventErr)
		assert.Equal(t, REASON_INVALID_EVENT, eventErr.Reason)
	})

	t.Run("UpdateEvent repository error", func(t *testing.T) {
		repo := &mockRepository{
			GetEventFunc: func(ctx context.Context, id uuid.UUID) (Event, error) {
				return Event{ID: eventID, Version: 1, MaxParticipants: 10}, nil
			},
			UpdateEventFunc: func(ctx context.Context, event Event) error {
				return errors.New("update failed")
			},
		}

		result, err := UpdateEvent(context.Background(), repo, eventID, Event{Name: "Updated Event", MaxParticipants: 10})

		assert.Error(t, err)
		assert.Equal(t, Event{}, result)
		assert.Contains(t, err.Error(), "update failed")
	})

	t.Run("existing counters preserved", func(t *testing.T) {
		var capturedEvent Event
		repo := &mockRepository{
			GetEventFunc: func(ctx context.Context, id uuid.UUID) (Event, error) {
				return Event{ID: eventID, Version: 42, MaxParticipants: 80, RegisteredParticipantCount: 50, RegisteredCohouseCount: 12}, nil
			},
			UpdateEventFunc: func(ctx context.Context, event Event) error {
				capturedEvent = event
				return nil
			},
		}

		result, err := UpdateEvent(context.Background(), repo, eventID, Event{
			Name:                       "Updated Event",
			MaxParticipants:            80,
			RegisteredParticipantCount: 999,
			RegisteredCohouseCount:     999,
		})

		assert.NoError(t, err)
		assert.Equal(t, 43, result.Version)
		assert.Equal(t, 50, capturedEvent.RegisteredParticipantCount)
		assert.Equal(t, 12, capturedEvent.RegisteredCohouseCount)
	})
}
