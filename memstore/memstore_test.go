package memstore

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/cohouse-dinner/game-registration/events"
	"github.com/cohouse-dinner/game-registration/registration"
	"github.com/cohouse-dinner/game-registration/saga"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func createEvent(t *testing.T, s *Store, maxParticipants int) events.Event {
	t.Helper()

	event, err := events.CreateEvent(context.Background(), s, events.Event{
		Name:                 "Spring Game",
		StartTime:            time.Now().Add(48 * time.Hour),
		RegistrationDeadline: time.Now().Add(24 * time.Hour),
		PricePerPerson:       money.New(500, money.EUR),
		MaxParticipants:      maxParticipants,
	})
	require.NoError(t, err)
	return event
}

func TestTryRegister(t *testing.T) {
	t.Run("registers and reserves seats", func(t *testing.T) {
		s := New()
		event := createEvent(t, s, 10)

		result, err := s.TryRegister(context.Background(), registration.Record{
			EventID:            event.ID,
			CohouseID:          "cohouse-1",
			AttendingMemberIDs: []string{"a", "b", "c"},
			PaymentIntentID:    "pi_1",
		})
		require.NoError(t, err)
		assert.Equal(t, registration.REGISTERED, result)

		stored, err := s.GetEvent(context.Background(), event.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, stored.RegisteredParticipantCount)
		assert.Equal(t, 1, stored.RegisteredCohouseCount)
		assert.Equal(t, event.Version+1, stored.Version)
	})

	t.Run("replays with the same intent are the same registration", func(t *testing.T) {
		s := New()
		event := createEvent(t, s, 10)
		record := registration.Record{EventID: event.ID, CohouseID: "cohouse-1", AttendingMemberIDs: []string{"a"}, PaymentIntentID: "pi_1"}

		_, err := s.TryRegister(context.Background(), record)
		require.NoError(t, err)
		result, err := s.TryRegister(context.Background(), record)
		require.NoError(t, err)
		assert.Equal(t, registration.ALREADY_REGISTERED_SAME, result)

		other := record
		other.PaymentIntentID = "pi_2"
		result, err = s.TryRegister(context.Background(), other)
		require.NoError(t, err)
		assert.Equal(t, registration.ALREADY_REGISTERED_CONFLICT, result)

		stored, err := s.GetEvent(context.Background(), event.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.RegisteredParticipantCount)
	})

	t.Run("missing events are reported", func(t *testing.T) {
		s := New()

		_, err := s.TryRegister(context.Background(), registration.Record{EventID: uuid.New(), CohouseID: "c", AttendingMemberIDs: []string{"a"}})

		var regErr *registration.Error
		require.ErrorAs(t, err, &regErr)
		assert.Equal(t, registration.REASON_ASSOCIATED_EVENT_DOES_NOT_EXIST, regErr.Reason)
	})

	t.Run("concurrent cohouses never overbook the last seats", func(t *testing.T) {
		s := New()
		const seats, contenders = 4, 12
		event := createEvent(t, s, seats)

		var registered, full atomic.Int32
		var g errgroup.Group
		for i := range contenders {
			g.Go(func() error {
				result, err := s.TryRegister(context.Background(), registration.Record{
					EventID:            event.ID,
					CohouseID:          fmt.Sprintf("cohouse-%d", i),
					AttendingMemberIDs: []string{"only"},
					PaymentIntentID:    fmt.Sprintf("pi_%d", i),
				})
				if err != nil {
					return err
				}
				switch result {
				case registration.REGISTERED:
					registered.Add(1)
				case registration.CAPACITY_EXCEEDED:
					full.Add(1)
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())

		assert.Equal(t, int32(seats), registered.Load())
		assert.Equal(t, int32(contenders-seats), full.Load())

		stored, err := s.GetEvent(context.Background(), event.ID)
		require.NoError(t, err)
		assert.Equal(t, seats, stored.RegisteredParticipantCount)
	})

	t.Run("concurrent replays of one registration leave one record", func(t *testing.T) {
		s := New()
		event := createEvent(t, s, 10)
		record := registration.Record{EventID: event.ID, CohouseID: "cohouse-1", AttendingMemberIDs: []string{"a", "b"}, PaymentIntentID: "pi_1"}

		var g errgroup.Group
		for range 8 {
			g.Go(func() error {
				_, err := s.TryRegister(context.Background(), record)
				return err
			})
		}
		require.NoError(t, g.Wait())

		resp, err := s.GetAllRegistrationsForEvent(context.Background(), event.ID, 10, nil)
		require.NoError(t, err)
		assert.Len(t, resp.Data, 1)

		stored, err := s.GetEvent(context.Background(), event.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, stored.RegisteredParticipantCount)
	})
}

func TestUpdateEvent(t *testing.T) {
	register := func(t *testing.T, s *Store, event events.Event, members ...string) {
		t.Helper()
		_, err := s.TryRegister(context.Background(), registration.Record{
			EventID:            event.ID,
			CohouseID:          "cohouse-1",
			AttendingMemberIDs: members,
			PaymentIntentID:    "pi_1",
		})
		require.NoError(t, err)
	}

	t.Run("keeps the registered counters", func(t *testing.T) {
		s := New()
		event := createEvent(t, s, 10)
		register(t, s, event, "a", "b")

		edit := event
		edit.Name = "Autumn Game"
		edit.MaxParticipants = 20
		updated, err := events.UpdateEvent(context.Background(), s, event.ID, edit)
		require.NoError(t, err)

		stored, err := s.GetEvent(context.Background(), event.ID)
		require.NoError(t, err)
		assert.Equal(t, updated, stored)
		assert.Equal(t, "Autumn Game", stored.Name)
		assert.Equal(t, 2, stored.RegisteredParticipantCount)
		assert.Equal(t, 18, stored.RemainingSeats())
	})

	t.Run("stale versions conflict", func(t *testing.T) {
		s := New()
		event := createEvent(t, s, 10)
		register(t, s, event, "a")

		stale := event
		stale.Version = event.Version + 1
		err := s.UpdateEvent(context.Background(), stale)
		var eventErr *events.Error
		require.ErrorAs(t, err, &eventErr)
		assert.Equal(t, events.REASON_VERSION_CONFLICT, eventErr.Reason)
	})

	t.Run("capacity can not drop below the registered participants", func(t *testing.T) {
		s := New()
		event := createEvent(t, s, 10)
		register(t, s, event, "a", "b", "c")

		edit := event
		edit.MaxParticipants = 2
		_, err := events.UpdateEvent(context.Background(), s, event.ID, edit)
		var eventErr *events.Error
		require.ErrorAs(t, err, &eventErr)
		assert.Equal(t, events.REASON_INVALID_EVENT, eventErr.Reason)
	})

	t.Run("missing event", func(t *testing.T) {
		s := New()
		err := s.UpdateEvent(context.Background(), events.Event{ID: uuid.New(), Version: 2, MaxParticipants: 1})
		var eventErr *events.Error
		require.ErrorAs(t, err, &eventErr)
		assert.Equal(t, events.REASON_EVENT_DOES_NOT_EXIST, eventErr.Reason)
	})
}

func TestPagination(t *testing.T) {
	s := New()
	event := createEvent(t, s, 100)
	for i := range 5 {
		_, err := s.TryRegister(context.Background(), registration.Record{
			EventID:            event.ID,
			CohouseID:          fmt.Sprintf("cohouse-%d", i),
			AttendingMemberIDs: []string{"a"},
			PaymentIntentID:    fmt.Sprintf("pi_%d", i),
		})
		require.NoError(t, err)
	}

	first, err := s.GetAllRegistrationsForEvent(context.Background(), event.ID, 3, nil)
	require.NoError(t, err)
	assert.Len(t, first.Data, 3)
	require.True(t, first.HasNextPage)

	second, err := s.GetAllRegistrationsForEvent(context.Background(), event.ID, 3, first.Cursor)
	require.NoError(t, err)
	assert.Len(t, second.Data, 2)
	assert.False(t, second.HasNextPage)
	assert.Equal(t, "cohouse-4", second.Data[1].CohouseID)

	bad := "not base64!"
	_, err = s.GetAllRegistrationsForEvent(context.Background(), event.ID, 3, &bad)
	var regErr *registration.Error
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, registration.REASON_INVALID_CURSOR, regErr.Reason)
}

func TestSagaStore(t *testing.T) {
	state := saga.State{CorrelationID: "corr-1", Version: 1, Phase: saga.CREATED}

	t.Run("create is conditional on absence", func(t *testing.T) {
		s := New()
		require.NoError(t, s.CreateSaga(context.Background(), state))

		err := s.CreateSaga(context.Background(), state)
		var sagaErr *saga.Error
		require.ErrorAs(t, err, &sagaErr)
		assert.Equal(t, saga.REASON_SAGA_ALREADY_EXISTS, sagaErr.Reason)
	})

	t.Run("updates must follow the stored version", func(t *testing.T) {
		s := New()
		require.NoError(t, s.CreateSaga(context.Background(), state))

		next := state
		next.Version = 2
		next.Phase = saga.INTENT_REQUESTED
		require.NoError(t, s.UpdateSaga(context.Background(), next))

		stale := state
		stale.Version = 2
		err := s.UpdateSaga(context.Background(), stale)
		var sagaErr *saga.Error
		require.ErrorAs(t, err, &sagaErr)
		assert.Equal(t, saga.REASON_STALE_STATE, sagaErr.Reason)

		got, err := s.GetSaga(context.Background(), "corr-1")
		require.NoError(t, err)
		assert.Equal(t, saga.INTENT_REQUESTED, got.Phase)
	})

	t.Run("expired sagas are gone", func(t *testing.T) {
		s := New()
		expired := time.Now().Add(-time.Minute)
		old := state
		old.ExpiresAt = &expired
		require.NoError(t, s.CreateSaga(context.Background(), old))

		_, err := s.GetSaga(context.Background(), "corr-1")
		var sagaErr *saga.Error
		require.ErrorAs(t, err, &sagaErr)
		assert.Equal(t, saga.REASON_SAGA_DOES_NOT_EXIST, sagaErr.Reason)

		assert.NoError(t, s.CreateSaga(context.Background(), state))
	})
}
