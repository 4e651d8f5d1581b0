// Package memstore keeps events, registrations and sagas in memory for local
// runs and tests. It follows the same contracts as the DynamoDB adapters.
package memstore

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cohouse-dinner/game-registration/events"
	"github.com/cohouse-dinner/game-registration/registration"
	"github.com/cohouse-dinner/game-registration/saga"
	"github.com/google/uuid"
)

var (
	_ events.Repository       = &Store{}
	_ registration.Repository = &Store{}
	_ saga.Store              = &Store{}
)

type Store struct {
	mu            sync.Mutex
	events        map[uuid.UUID]events.Event
	registrations map[uuid.UUID]map[string]registration.Record
	sagas         map[string]saga.State
	now           func() time.Time
}

func New() *Store {
	return &Store{
		events:        map[uuid.UUID]events.Event{},
		registrations: map[uuid.UUID]map[string]registration.Record{},
		sagas:         map[string]saga.State{},
		now:           time.Now,
	}
}

func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[id]
	if !ok {
		return events.Event{}, events.NewEventDoesNotExistsError(fmt.Sprintf("Event with ID %q not found", id), nil)
	}
	return event, nil
}

func (s *Store) GetEvents(ctx context.Context, limit int32, cursor *string) (events.GetEventsResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	offset, err := decodeCursor(cursor)
	if err != nil {
		return events.GetEventsResponse{}, events.NewInvalidCursorError("Invalid cursor", err)
	}

	all := make([]events.Event, 0, len(s.events))
	for _, e := range s.events {
		all = append(all, e)
	}
	// Newest event first
	sort.Slice(all, func(i, j int) bool {
		if all[i].StartTime.Equal(all[j].StartTime) {
			return all[i].ID.String() > all[j].ID.String()
		}
		return all[i].StartTime.After(all[j].StartTime)
	})

	page, next := paginate(all, offset, int(limit))
	return events.GetEventsResponse{
		Data:        page,
		Cursor:      next,
		HasNextPage: next != nil,
	}, nil
}

func (s *Store) CreateEvent(ctx context.Context, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[event.ID]; ok || event.Version != 1 {
		return events.NewEventAlreadyExistsError(fmt.Sprintf("Event with ID %q already exists", event.ID), nil)
	}
	s.events[event.ID] = event
	return nil
}

func (s *Store) UpdateEvent(ctx context.Context, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.events[event.ID]
	if !ok {
		return events.NewEventDoesNotExistsError(fmt.Sprintf("Event with ID %q does not exists", event.ID), nil)
	}
	if existing.Version != event.Version-1 {
		return events.NewVersionConflictError(fmt.Sprintf("Event with ID %q is at version %d", event.ID, existing.Version), nil)
	}
	event.RegisteredParticipantCount = existing.RegisteredParticipantCount
	event.RegisteredCohouseCount = existing.RegisteredCohouseCount
	if event.MaxParticipants < event.RegisteredParticipantCount {
		return events.NewInvalidEventError(fmt.Sprintf("MaxParticipants %d is below the %d registered participants", event.MaxParticipants, event.RegisteredParticipantCount))
	}
	s.events[event.ID] = event
	return nil
}

// TryRegister checks existence and capacity and reserves the seats under one
// lock.
func (s *Store) TryRegister(ctx context.Context, record registration.Record) (registration.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.registrations[record.EventID][record.CohouseID]; ok {
		if existing.PaymentIntentID == record.PaymentIntentID {
			return registration.ALREADY_REGISTERED_SAME, nil
		}
		return registration.ALREADY_REGISTERED_CONFLICT, nil
	}

	event, ok := s.events[record.EventID]
	if !ok {
		return 0, registration.NewAssociatedEventDoesNotExistError(fmt.Sprintf("Event with ID %q not found", record.EventID), nil)
	}
	if event.RegisteredParticipantCount+record.ParticipantCount() > event.MaxParticipants {
		return registration.CAPACITY_EXCEEDED, nil
	}

	event.RegisteredParticipantCount += record.ParticipantCount()
	event.RegisteredCohouseCount++
	event.Version++
	s.events[event.ID] = event

	if s.registrations[record.EventID] == nil {
		s.registrations[record.EventID] = map[string]registration.Record{}
	}
	record.AttendingMemberIDs = append([]string(nil), record.AttendingMemberIDs...)
	s.registrations[record.EventID][record.CohouseID] = record

	return registration.REGISTERED, nil
}

func (s *Store) GetRegistration(ctx context.Context, eventId uuid.UUID, cohouseId string) (registration.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.registrations[eventId][cohouseId]
	if !ok {
		return registration.Record{}, registration.NewRegistrationDoesNotExistsError(fmt.Sprintf("No registration for cohouse %q in event %q", cohouseId, eventId), nil)
	}
	return record, nil
}

func (s *Store) GetAllRegistrationsForEvent(ctx context.Context, eventId uuid.UUID, limit int32, cursor *string) (registration.GetAllRegistrationsResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	offset, err := decodeCursor(cursor)
	if err != nil {
		return registration.GetAllRegistrationsResponse{}, registration.NewInvalidCursorError("Invalid cursor", err)
	}

	all := make([]registration.Record, 0, len(s.registrations[eventId]))
	for _, r := range s.registrations[eventId] {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CohouseID < all[j].CohouseID
	})

	page, next := paginate(all, offset, int(limit))
	return registration.GetAllRegistrationsResponse{
		Data:        page,
		Cursor:      next,
		HasNextPage: next != nil,
	}, nil
}

func (s *Store) CreateSaga(ctx context.Context, state saga.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sagas[state.CorrelationID]; ok && !s.expired(existing) {
		return saga.NewSagaAlreadyExistsError(state.CorrelationID, nil)
	}
	if state.Version != 1 {
		return saga.NewStaleStateError(state.CorrelationID, nil)
	}
	s.sagas[state.CorrelationID] = state
	return nil
}

func (s *Store) GetSaga(ctx context.Context, correlationID string) (saga.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sagas[correlationID]
	if !ok || s.expired(state) {
		return saga.State{}, saga.NewSagaDoesNotExistError(correlationID, nil)
	}
	return state, nil
}

func (s *Store) UpdateSaga(ctx context.Context, state saga.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.sagas[state.CorrelationID]
	if !ok {
		return saga.NewSagaDoesNotExistError(state.CorrelationID, nil)
	}
	if existing.Version != state.Version-1 {
		return saga.NewStaleStateError(state.CorrelationID, nil)
	}
	s.sagas[state.CorrelationID] = state
	return nil
}

func (s *Store) expired(state saga.State) bool {
	return state.ExpiresAt != nil && s.now().After(*state.ExpiresAt)
}

func paginate[T any](all []T, offset, limit int) ([]T, *string) {
	if offset >= len(all) {
		return []T{}, nil
	}
	end := min(offset+limit, len(all))
	if end == len(all) {
		return all[offset:end], nil
	}
	next := base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(end)))
	return all[offset:end], &next
}

func decodeCursor(cursor *string) (int, error) {
	if cursor == nil {
		return 0, nil
	}
	raw, err := base64.StdEncoding.DecodeString(*cursor)
	if err != nil {
		return 0, fmt.Errorf("failed to b64 decode: %w", err)
	}
	offset, err := strconv.Atoi(string(raw))
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("invalid cursor offset %q", raw)
	}
	return offset, nil
}
