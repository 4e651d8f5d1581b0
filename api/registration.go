package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cohouse-dinner/game-registration/ptr"
	"github.com/cohouse-dinner/game-registration/registration"
	"github.com/cohouse-dinner/game-registration/saga"
	"github.com/cohouse-dinner/game-registration/slices"
	openapi_types "github.com/oapi-codegen/runtime/types"
)

func (a *API) GetEventRegistrations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := getLoggerFromCtx(ctx)

	var eventId openapi_types.UUID
	if err := bindPathParam(r, "eventId", &eventId); err != nil {
		writeError(ctx, w, http.StatusBadRequest, InputValidationError, err.Error())
		return
	}

	limit, cursor, err := bindPageParams(r)
	if err != nil {
		logger.Warn("Invalid page parameters", slog.String("error", err.Error()))
		writePageParamError(ctx, w, err)
		return
	}

	result, err := a.db.GetAllRegistrationsForEvent(ctx, eventId, limit, cursor)
	if err != nil {
		var registrationErr *registration.Error
		if errors.As(err, &registrationErr) {
			switch registrationErr.Reason {
			case registration.REASON_INVALID_CURSOR:
				writeError(ctx, w, http.StatusBadRequest, InvalidCursor, "Cursor is invalid")
				return
			}
		}

		logger.Error("Failed to get registrations for event", slog.String("error", err.Error()), slog.String("eventId", eventId.String()))
		writeError(ctx, w, http.StatusInternalServerError, InternalError, "Failed to get registrations")
		return
	}

	writeJSON(ctx, w, http.StatusOK, RegistrationPage{
		Data: slices.Map(result.Data, func(v registration.Record) Registration {
			return registrationToApiRegistration(v)
		}),
		Cursor:      result.Cursor,
		HasNextPage: result.HasNextPage,
	})
}

func (a *API) StartRegistration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	correlationId, ok := a.bindCorrelationId(w, r)
	if !ok {
		return
	}

	var body StartRegistrationRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(ctx, w, http.StatusBadRequest, InvalidBody, "Must specify a valid JSON body")
		return
	}

	req, err := apiStartRegistrationToRequest(body)
	if err != nil {
		writeError(ctx, w, http.StatusBadRequest, InvalidBody, err.Error())
		return
	}

	sheet, err := a.saga.StartRegistration(ctx, correlationId, req)
	if err != nil {
		writeSagaError(ctx, w, correlationId, saga.State{}, err)
		return
	}

	writeJSON(ctx, w, http.StatusOK, PaymentSheet{
		CorrelationId:   correlationId,
		PaymentIntentId: sheet.PaymentIntentID,
		ClientSecret:    sheet.ClientSecret,
		CustomerId:      sheet.CustomerID,
		EphemeralKey:    sheet.EphemeralKeySecret,
		Amount: Money{
			Amount:   sheet.AmountCents,
			Currency: sheet.Currency,
		},
	})
}

func (a *API) ReportPaymentOutcome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	correlationId, ok := a.bindCorrelationId(w, r)
	if !ok {
		return
	}

	var body PaymentOutcomeRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(ctx, w, http.StatusBadRequest, InvalidBody, "Must specify a valid JSON body")
		return
	}
	outcome, err := saga.ParseClientOutcome(body.Outcome)
	if err != nil {
		writeError(ctx, w, http.StatusBadRequest, InvalidBody, err.Error())
		return
	}

	state, err := a.saga.ReportPaymentOutcome(ctx, correlationId, outcome)
	a.writeSagaResult(w, r, correlationId, state, err)
}

func (a *API) SubmitRegistration(w http.ResponseWriter, r *http.Request) {
	correlationId, ok := a.bindCorrelationId(w, r)
	if !ok {
		return
	}

	state, err := a.saga.SubmitRegistration(r.Context(), correlationId)
	a.writeSagaResult(w, r, correlationId, state, err)
}

func (a *API) RetrySaga(w http.ResponseWriter, r *http.Request) {
	correlationId, ok := a.bindCorrelationId(w, r)
	if !ok {
		return
	}

	state, err := a.saga.RetrySaga(r.Context(), correlationId)
	a.writeSagaResult(w, r, correlationId, state, err)
}

func (a *API) CancelSaga(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	correlationId, ok := a.bindCorrelationId(w, r)
	if !ok {
		return
	}

	reason := "no reason given"
	if r.ContentLength != 0 {
		var body CancelRequest
		if err := decodeBody(r, &body); err != nil {
			writeError(ctx, w, http.StatusBadRequest, InvalidBody, "Body must be valid JSON")
			return
		}
		if body.Reason != nil && *body.Reason != "" {
			reason = *body.Reason
		}
	}

	state, err := a.saga.CancelSaga(ctx, correlationId, reason)
	a.writeSagaResult(w, r, correlationId, state, err)
}

func (a *API) GetSagaState(w http.ResponseWriter, r *http.Request) {
	correlationId, ok := a.bindCorrelationId(w, r)
	if !ok {
		return
	}

	state, err := a.saga.GetSagaState(r.Context(), correlationId)
	a.writeSagaResult(w, r, correlationId, state, err)
}

func (a *API) bindCorrelationId(w http.ResponseWriter, r *http.Request) (string, bool) {
	var correlationId string
	if err := bindPathParam(r, "correlationId", &correlationId); err != nil || correlationId == "" {
		writeError(r.Context(), w, http.StatusBadRequest, InputValidationError, "correlationId is required")
		return "", false
	}
	return correlationId, true
}

func (a *API) writeSagaResult(w http.ResponseWriter, r *http.Request, correlationId string, state saga.State, err error) {
	if err != nil {
		writeSagaError(r.Context(), w, correlationId, state, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, sagaStateToApiSagaState(state))
}

func apiStartRegistrationToRequest(body StartRegistrationRequest) (registration.Request, error) {
	category, err := registration.ParseCategory(string(body.Category))
	if err != nil {
		return registration.Request{}, err
	}

	req := registration.Request{
		EventID:            body.EventId,
		CohouseID:          body.CohouseId,
		AttendingMemberIDs: body.AttendingMemberIds,
		AverageAge:         body.AverageAge,
		Category:           category,
	}
	if body.ContactEmail != nil {
		req.ContactEmail = string(*body.ContactEmail)
	}
	return req, nil
}

func registrationToApiRegistration(record registration.Record) Registration {
	return Registration{
		EventId:            record.EventID,
		CohouseId:          record.CohouseID,
		AttendingMemberIds: record.AttendingMemberIDs,
		AverageAge:         record.AverageAge,
		Category:           Category(record.Category.String()),
		PaymentIntentId:    record.PaymentIntentID,
		AmountPaid: Money{
			Amount:   record.AmountPaidCents,
			Currency: record.Currency,
		},
		CreatedAt: record.CreatedAt,
	}
}

func sagaStateToApiSagaState(state saga.State) SagaState {
	resp := SagaState{
		CorrelationId:      state.CorrelationID,
		Phase:              state.Phase.String(),
		RecoveryAction:     string(state.RecoveryAction()),
		EventId:            state.EventID,
		CohouseId:          state.CohouseID,
		AttendingMemberIds: state.AttendingMemberIDs,
		PaymentIntentId:    ptr.NonZero(state.PaymentIntentID),
		PaymentCaptured:    state.PaymentCaptured,
		ErrorReason:        ptr.NonZero(string(state.ErrorReason)),
		LastError:          ptr.NonZero(state.LastError),
		Attempt:            state.Attempt,
		CreatedAt:          state.CreatedAt,
		UpdatedAt:          state.UpdatedAt,
		CompletedAt:        state.CompletedAt,
	}
	if state.Phase == saga.FAILED_RETRYABLE {
		resp.FailedAt = ptr.To(state.FailedAt.String())
	}
	if state.AmountCents > 0 {
		resp.Amount = &Money{Amount: state.AmountCents, Currency: state.Currency}
	}
	return resp
}
