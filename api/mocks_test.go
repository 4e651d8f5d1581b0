package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cohouse-dinner/game-registration/events"
	"github.com/cohouse-dinner/game-registration/registration"
	"github.com/cohouse-dinner/game-registration/saga"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var noopLogger = slog.New(slog.DiscardHandler)

var _ DB = &mockDB{}

type mockDB struct {
	GetEventsFunc                   func(ctx context.Context, limit int32, cursor *string) (events.GetEventsResponse, error)
	CreateEventFunc                 func(ctx context.Context, event events.Event) error
	GetEventFunc                    func(ctx context.Context, id uuid.UUID) (events.Event, error)
	UpdateEventFunc                 func(ctx context.Context, event events.Event) error
	TryRegisterFunc                 func(ctx context.Context, record registration.Record) (registration.Result, error)
	GetRegistrationFunc             func(ctx context.Context, eventId uuid.UUID, cohouseId string) (registration.Record, error)
	GetAllRegistrationsForEventFunc func(ctx context.Context, eventId uuid.UUID, limit int32, cursor *string) (registration.GetAllRegistrationsResponse, error)
}

func (m *mockDB) GetEvents(ctx context.Context, limit int32, cursor *string) (events.GetEventsResponse, error) {
	return m.GetEventsFunc(ctx, limit, cursor)
}

func (m *mockDB) CreateEvent(ctx context.Context, event events.Event) error {
	return m.CreateEventFunc(ctx, event)
}

func (m *mockDB) GetEvent(ctx context.Context, id uuid.UUID) (events.Event, error) {
	return m.GetEventFunc(ctx, id)
}

func (m *mockDB) UpdateEvent(ctx context.Context, event events.Event) error {
	return m.UpdateEventFunc(ctx, event)
}

func (m *mockDB) TryRegister(ctx context.Context, record registration.Record) (registration.Result, error) {
	return m.TryRegisterFunc(ctx, record)
}

func (m *mockDB) GetRegistration(ctx context.Context, eventId uuid.UUID, cohouseId string) (registration.Record, error) {
	return m.GetRegistrationFunc(ctx, eventId, cohouseId)
}

func (m *mockDB) GetAllRegistrationsForEvent(ctx context.Context, eventId uuid.UUID, limit int32, cursor *string) (registration.GetAllRegistrationsResponse, error) {
	return m.GetAllRegistrationsForEventFunc(ctx, eventId, limit, cursor)
}

var _ RegistrationSaga = &mockSaga{}

type mockSaga struct {
	StartRegistrationFunc    func(ctx context.Context, correlationID string, req registration.Request) (saga.PaymentSheet, error)
	ReportPaymentOutcomeFunc func(ctx context.Context, correlationID string, outcome saga.ClientOutcome) (saga.State, error)
	SubmitRegistrationFunc   func(ctx context.Context, correlationID string) (saga.State, error)
	RetrySagaFunc            func(ctx context.Context, correlationID string) (saga.State, error)
	CancelSagaFunc           func(ctx context.Context, correlationID string, reason string) (saga.State, error)
	GetSagaStateFunc         func(ctx context.Context, correlationID string) (saga.State, error)
}

func (m *mockSaga) StartRegistration(ctx context.Context, correlationID string, req registration.Request) (saga.PaymentSheet, error) {
	return m.StartRegistrationFunc(ctx, correlationID, req)
}

func (m *mockSaga) ReportPaymentOutcome(ctx context.Context, correlationID string, outcome saga.ClientOutcome) (saga.State, error) {
	return m.ReportPaymentOutcomeFunc(ctx, correlationID, outcome)
}

func (m *mockSaga) SubmitRegistration(ctx context.Context, correlationID string) (saga.State, error) {
	return m.SubmitRegistrationFunc(ctx, correlationID)
}

func (m *mockSaga) RetrySaga(ctx context.Context, correlationID string) (saga.State, error) {
	return m.RetrySagaFunc(ctx, correlationID)
}

func (m *mockSaga) CancelSaga(ctx context.Context, correlationID string, reason string) (saga.State, error) {
	return m.CancelSagaFunc(ctx, correlationID, reason)
}

func (m *mockSaga) GetSagaState(ctx context.Context, correlationID string) (saga.State, error) {
	return m.GetSagaStateFunc(ctx, correlationID)
}

func newTestHandler(t *testing.T, db DB, registrationSaga RegistrationSaga) http.Handler {
	t.Helper()

	a := NewAPI(db, registrationSaga, noopLogger, LOCAL, nil)
	h, err := a.Handler()
	require.NoError(t, err)
	return h
}

func doRequest(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}
