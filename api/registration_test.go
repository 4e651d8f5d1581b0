package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/cohouse-dinner/game-registration/ptr"
	"github.com/cohouse-dinner/game-registration/registration"
	"github.com/cohouse-dinner/game-registration/saga"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCorrelationId = "9a4c6f0e-client-generated"

func testSagaState(phase saga.Phase) saga.State {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return saga.State{
		CorrelationID:      testCorrelationId,
		Version:            4,
		EventID:            uuid.New(),
		CohouseID:          "cohouse-1",
		AttendingMemberIDs: []string{"m1", "m2"},
		Phase:              phase,
		AmountCents:        1000,
		Currency:           "EUR",
		PaymentIntentID:    "pi_123",
		Attempt:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func TestStartRegistration(t *testing.T) {
	eventId := uuid.New()
	body := `{
		"eventId": "` + eventId.String() + `",
		"cohouseId": "cohouse-1",
		"attendingMemberIds": ["m1", "m2"],
		"averageAge": 24,
		"category": "girlsOnly",
		"contactEmail": "house@example.com"
	}`

	t.Run("returns the payment sheet", func(t *testing.T) {
		var got registration.Request
		s := &mockSaga{
			StartRegistrationFunc: func(ctx context.Context, correlationID string, req registration.Request) (saga.PaymentSheet, error) {
				assert.Equal(t, testCorrelationId, correlationID)
				got = req
				return saga.PaymentSheet{
					PaymentIntentID:    "pi_123",
					ClientSecret:       "pi_123_secret",
					CustomerID:         "cus_1",
					EphemeralKeySecret: "ek_1",
					AmountCents:        1000,
					Currency:           "EUR",
				}, nil
			},
		}
		h := newTestHandler(t, &mockDB{}, s)

		w := doRequest(h, http.MethodPost, "/v1/registrations/"+testCorrelationId+"/start", body)
		require.Equal(t, http.StatusOK, w.Code)

		var sheet PaymentSheet
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sheet))
		assert.Equal(t, PaymentSheet{
			CorrelationId:   testCorrelationId,
			PaymentIntentId: "pi_123",
			ClientSecret:    "pi_123_secret",
			CustomerId:      "cus_1",
			EphemeralKey:    "ek_1",
			Amount:          Money{Amount: 1000, Currency: "EUR"},
		}, sheet)

		assert.Equal(t, registration.Request{
			EventID:            eventId,
			CohouseID:          "cohouse-1",
			AttendingMemberIDs: []string{"m1", "m2"},
			AverageAge:         24,
			Category:           registration.GIRLS_ONLY,
			ContactEmail:       "house@example.com",
		}, got)
	})

	t.Run("validation failures carry the reason", func(t *testing.T) {
		s := &mockSaga{
			StartRegistrationFunc: func(ctx context.Context, correlationID string, req registration.Request) (saga.PaymentSheet, error) {
				return saga.PaymentSheet{}, saga.NewValidationError(saga.REASON_DEADLINE_PASSED, correlationID, "Registration is closed", nil)
			},
		}
		h := newTestHandler(t, &mockDB{}, s)

		w := doRequest(h, http.MethodPost, "/v1/registrations/"+testCorrelationId+"/start", body)
		require.Equal(t, http.StatusBadRequest, w.Code)

		e := decodeError(t, w.Body.Bytes())
		assert.Equal(t, ErrorCode(saga.REASON_DEADLINE_PASSED), e.Code)
		require.NotNil(t, e.Retryable)
		assert.False(t, *e.Retryable)
		require.NotNil(t, e.CorrelationId)
		assert.Equal(t, testCorrelationId, *e.CorrelationId)
		assert.Nil(t, e.Phase)
	})

	t.Run("concurrent command on the same saga", func(t *testing.T) {
		s := &mockSaga{
			StartRegistrationFunc: func(ctx context.Context, correlationID string, req registration.Request) (saga.PaymentSheet, error) {
				return saga.PaymentSheet{}, saga.NewAlreadyInProgressError(correlationID)
			},
		}
		h := newTestHandler(t, &mockDB{}, s)

		w := doRequest(h, http.MethodPost, "/v1/registrations/"+testCorrelationId+"/start", body)
		require.Equal(t, http.StatusLocked, w.Code)
		assert.Equal(t, ErrorCode(saga.REASON_ALREADY_IN_PROGRESS), decodeError(t, w.Body.Bytes()).Code)
	})

	t.Run("unknown category is rejected", func(t *testing.T) {
		h := newTestHandler(t, &mockDB{}, &mockSaga{})

		w := doRequest(h, http.MethodPost, "/v1/registrations/"+testCorrelationId+"/start", `{
			"eventId": "`+eventId.String()+`",
			"cohouseId": "cohouse-1",
			"attendingMemberIds": ["m1"],
			"averageAge": 24,
			"category": "everyone"
		}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestReportPaymentOutcome(t *testing.T) {
	t.Run("returns the new state", func(t *testing.T) {
		state := testSagaState(saga.SUCCEEDED)
		state.PaymentCaptured = true
		s := &mockSaga{
			ReportPaymentOutcomeFunc: func(ctx context.Context, correlationID string, outcome saga.ClientOutcome) (saga.State, error) {
				assert.Equal(t, saga.CLIENT_CONFIRMED, outcome)
				return state, nil
			},
		}
		h := newTestHandler(t, &mockDB{}, s)

		w := doRequest(h, http.MethodPost, "/v1/registrations/"+testCorrelationId+"/outcome", `{"outcome": "confirmed"}`)
		require.Equal(t, http.StatusOK, w.Code)

		var resp SagaState
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "Succeeded", resp.Phase)
		assert.Equal(t, string(saga.RECOVERY_NONE), resp.RecoveryAction)
		assert.True(t, resp.PaymentCaptured)
		assert.Equal(t, &Money{Amount: 1000, Currency: "EUR"}, resp.Amount)
		assert.Nil(t, resp.FailedAt)
		assert.Nil(t, resp.ErrorReason)
	})

	t.Run("outcome outside the enum", func(t *testing.T) {
		h := newTestHandler(t, &mockDB{}, &mockSaga{})

		w := doRequest(h, http.MethodPost, "/v1/registrations/"+testCorrelationId+"/outcome", `{"outcome": "maybe"}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, InputValidationError, decodeError(t, w.Body.Bytes()).Code)
	})

	t.Run("failed payment reports how to recover", func(t *testing.T) {
		state := testSagaState(saga.FAILED_RETRYABLE)
		state.FailedAt = saga.AWAITING_PAYMENT_OUTCOME
		state.ErrorReason = saga.REASON_PAYMENT_FAILED
		s := &mockSaga{
			ReportPaymentOutcomeFunc: func(ctx context.Context, correlationID string, outcome saga.ClientOutcome) (saga.State, error) {
				return state, saga.NewPaymentFailedError(correlationID, "Payment failed: card declined")
			},
		}
		h := newTestHandler(t, &mockDB{}, s)

		w := doRequest(h, http.MethodPost, "/v1/registrations/"+testCorrelationId+"/outcome", `{"outcome": "failed"}`)
		require.Equal(t, http.StatusPaymentRequired, w.Code)

		e := decodeError(t, w.Body.Bytes())
		assert.Equal(t, ErrorCode(saga.REASON_PAYMENT_FAILED), e.Code)
		require.NotNil(t, e.Retryable)
		assert.True(t, *e.Retryable)
		require.NotNil(t, e.Phase)
		assert.Equal(t, "FailedRetryable", *e.Phase)
		require.NotNil(t, e.RecoveryAction)
		assert.Equal(t, string(saga.RECOVERY_RETRY_PAYMENT), *e.RecoveryAction)
	})

	t.Run("pending payment", func(t *testing.T) {
		s := &mockSaga{
			ReportPaymentOutcomeFunc: func(ctx context.Context, correlationID string, outcome saga.ClientOutcome) (saga.State, error) {
				return testSagaState(saga.AWAITING_PAYMENT_OUTCOME), saga.NewPaymentPendingError(correlationID, "Payment is still processing")
			},
		}
		h := newTestHandler(t, &mockDB{}, s)

		w := doRequest(h, http.MethodPost, "/v1/registrations/"+testCorrelationId+"/outcome", `{"outcome": "confirmed"}`)
		assert.Equal(t, http.StatusAccepted, w.Code)
	})
}

func TestSubmitRegistration(t *testing.T) {
	t.Run("capacity exceeded", func(t *testing.T) {
		state := testSagaState(saga.FAILED_TERMINAL)
		state.PaymentCaptured = true
		s := &mockSaga{
			SubmitRegistrationFunc: func(ctx context.Context, correlationID string) (saga.State, error) {
				return state, saga.NewCapacityExceededError(correlationID, "Not enough seats left")
			},
		}
		h := newTestHandler(t, &mockDB{}, s)

		w := doRequest(h, http.MethodPost, "/v1/registrations/"+testCorrelationId+"/submit", "")
		require.Equal(t, http.StatusConflict, w.Code)

		e := decodeError(t, w.Body.Bytes())
		require.NotNil(t, e.RecoveryAction)
		assert.Equal(t, string(saga.RECOVERY_CONTACT_SUPPORT), *e.RecoveryAction)
	})
}

func TestRetrySaga(t *testing.T) {
	t.Run("gateway still down", func(t *testing.T) {
		state := testSagaState(saga.FAILED_RETRYABLE)
		state.FailedAt = saga.INTENT_REQUESTED
		state.PaymentIntentID = ""
		s := &mockSaga{
			RetrySagaFunc: func(ctx context.Context, correlationID string) (saga.State, error) {
				return state, saga.NewGatewayError(correlationID, "Failed to create payment intent", true, errors.New("timeout"))
			},
		}
		h := newTestHandler(t, &mockDB{}, s)

		w := doRequest(h, http.MethodPost, "/v1/registrations/"+testCorrelationId+"/retry", "")
		require.Equal(t, http.StatusServiceUnavailable, w.Code)

		e := decodeError(t, w.Body.Bytes())
		assert.Equal(t, ErrorCode(saga.REASON_GATEWAY_ERROR), e.Code)
		require.NotNil(t, e.Retryable)
		assert.True(t, *e.Retryable)
		require.NotNil(t, e.RecoveryAction)
		assert.Equal(t, string(saga.RECOVERY_RESTART), *e.RecoveryAction)
	})
}

func TestCancelSaga(t *testing.T) {
	t.Run("without a body uses the default reason", func(t *testing.T) {
		s := &mockSaga{
			CancelSagaFunc: func(ctx context.Context, correlationID string, reason string) (saga.State, error) {
				assert.Equal(t, "no reason given", reason)
				return testSagaState(saga.CANCELED), nil
			},
		}
		h := newTestHandler(t, &mockDB{}, s)

		w := doRequest(h, http.MethodPost, "/v1/registrations/"+testCorrelationId+"/cancel", "")
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("passes the reason through", func(t *testing.T) {
		s := &mockSaga{
			CancelSagaFunc: func(ctx context.Context, correlationID string, reason string) (saga.State, error) {
				assert.Equal(t, "duplicate signup", reason)
				return testSagaState(saga.CANCELED), nil
			},
		}
		h := newTestHandler(t, &mockDB{}, s)

		w := doRequest(h, http.MethodPost, "/v1/registrations/"+testCorrelationId+"/cancel", `{"reason": "duplicate signup"}`)
		require.Equal(t, http.StatusOK, w.Code)

		var resp SagaState
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "Canceled", resp.Phase)
	})

	t.Run("refused once registering", func(t *testing.T) {
		s := &mockSaga{
			CancelSagaFunc: func(ctx context.Context, correlationID string, reason string) (saga.State, error) {
				return testSagaState(saga.REGISTERING), saga.NewInvalidTransitionError(correlationID, "Saga can not be canceled once registering")
			},
		}
		h := newTestHandler(t, &mockDB{}, s)

		w := doRequest(h, http.MethodPost, "/v1/registrations/"+testCorrelationId+"/cancel", "")
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestGetSagaState(t *testing.T) {
	t.Run("unknown correlation id", func(t *testing.T) {
		s := &mockSaga{
			GetSagaStateFunc: func(ctx context.Context, correlationID string) (saga.State, error) {
				return saga.State{}, saga.NewSagaDoesNotExistError(correlationID, nil)
			},
		}
		h := newTestHandler(t, &mockDB{}, s)

		w := doRequest(h, http.MethodGet, "/v1/registrations/"+testCorrelationId, "")
		require.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, ErrorCode(saga.REASON_SAGA_DOES_NOT_EXIST), decodeError(t, w.Body.Bytes()).Code)
	})

	t.Run("unexpected error", func(t *testing.T) {
		s := &mockSaga{
			GetSagaStateFunc: func(ctx context.Context, correlationID string) (saga.State, error) {
				return saga.State{}, errors.New("boom")
			},
		}
		h := newTestHandler(t, &mockDB{}, s)

		w := doRequest(h, http.MethodGet, "/v1/registrations/"+testCorrelationId, "")
		require.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, InternalError, decodeError(t, w.Body.Bytes()).Code)
	})
}

func TestGetEventRegistrations(t *testing.T) {
	eventId := uuid.New()
	createdAt := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

	t.Run("returns the ledger page", func(t *testing.T) {
		db := &mockDB{
			GetAllRegistrationsForEventFunc: func(ctx context.Context, id uuid.UUID, limit int32, cursor *string) (registration.GetAllRegistrationsResponse, error) {
				assert.Equal(t, eventId, id)
				assert.Equal(t, int32(2), limit)
				return registration.GetAllRegistrationsResponse{
					Data: []registration.Record{{
						EventID:            eventId,
						CohouseID:          "cohouse-1",
						AttendingMemberIDs: []string{"m1", "m2"},
						AverageAge:         24,
						Category:           registration.BOYS_ONLY,
						PaymentIntentID:    "pi_123",
						AmountPaidCents:    1000,
						Currency:           "EUR",
						CreatedAt:          createdAt,
					}},
					Cursor:      ptr.To("next"),
					HasNextPage: true,
				}, nil
			},
		}
		h := newTestHandler(t, db, &mockSaga{})

		w := doRequest(h, http.MethodGet, "/v1/events/"+eventId.String()+"/registrations?limit=2", "")
		require.Equal(t, http.StatusOK, w.Code)

		var page RegistrationPage
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
		require.Len(t, page.Data, 1)
		assert.True(t, page.HasNextPage)
		assert.Equal(t, "next", *page.Cursor)
		assert.Equal(t, BoysOnly, page.Data[0].Category)
		assert.Equal(t, Money{Amount: 1000, Currency: "EUR"}, page.Data[0].AmountPaid)
		assert.True(t, createdAt.Equal(page.Data[0].CreatedAt))
	})

	t.Run("invalid cursor", func(t *testing.T) {
		db := &mockDB{
			GetAllRegistrationsForEventFunc: func(ctx context.Context, id uuid.UUID, limit int32, cursor *string) (registration.GetAllRegistrationsResponse, error) {
				return registration.GetAllRegistrationsResponse{}, registration.NewInvalidCursorError("bad", nil)
			},
		}
		h := newTestHandler(t, db, &mockSaga{})

		w := doRequest(h, http.MethodGet, "/v1/events/"+eventId.String()+"/registrations?cursor=zzz", "")
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, InvalidCursor, decodeError(t, w.Body.Bytes()).Code)
	})
}
