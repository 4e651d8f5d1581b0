package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cohouse-dinner/game-registration/ptr"
	"github.com/cohouse-dinner/game-registration/saga"
	"github.com/oapi-codegen/runtime"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 50
)

func writeJSON(ctx context.Context, w http.ResponseWriter, statusCode int, body any) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		getLoggerFromCtx(ctx).Error("failed to marshal response", slog.String("error", err.Error()))
		statusCode = http.StatusInternalServerError
		jsonBody = []byte(`{"message": "failed to encode response", "code": "InternalError"}`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(jsonBody)
}

func writeError(ctx context.Context, w http.ResponseWriter, statusCode int, code ErrorCode, message string) {
	writeJSON(ctx, w, statusCode, Error{Code: code, Message: message})
}

func decodeBody(r *http.Request, dest any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return errors.New("empty body")
	}
	return json.NewDecoder(r.Body).Decode(dest)
}

func bindPathParam(r *http.Request, name string, dest any) error {
	return runtime.BindStyledParameterWithOptions("simple", name, r.PathValue(name), dest, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
}

// bindPageParams reads the limit and cursor query parameters shared by all
// list endpoints.
func bindPageParams(r *http.Request) (int32, *string, error) {
	var limit *int32
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		return 0, nil, err
	}
	var cursor *string
	if err := runtime.BindQueryParameter("form", true, false, "cursor", r.URL.Query(), &cursor); err != nil {
		return 0, nil, err
	}

	if limit == nil {
		return defaultPageLimit, cursor, nil
	}
	if *limit < 1 || *limit > maxPageLimit {
		return 0, nil, errLimitOutOfBounds
	}
	return *limit, cursor, nil
}

var errLimitOutOfBounds = fmt.Errorf("limit must be between 1 and %d", maxPageLimit)

func writePageParamError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, errLimitOutOfBounds) {
		writeError(ctx, w, http.StatusBadRequest, LimitOutOfBounds, err.Error())
		return
	}
	writeError(ctx, w, http.StatusBadRequest, InputValidationError, err.Error())
}

// sagaStatusCode maps a saga failure onto the HTTP status the client acts
// on.
func sagaStatusCode(sagaErr *saga.Error) int {
	if sagaErr.IsValidation() {
		return http.StatusBadRequest
	}

	switch sagaErr.Reason {
	case saga.REASON_SAGA_DOES_NOT_EXIST, saga.REASON_EVENT_DOES_NOT_EXIST:
		return http.StatusNotFound
	case saga.REASON_CAPACITY_EXCEEDED, saga.REASON_ALREADY_REGISTERED_CONFLICT,
		saga.REASON_INVALID_TRANSITION, saga.REASON_SAGA_ALREADY_EXISTS:
		return http.StatusConflict
	case saga.REASON_ALREADY_IN_PROGRESS:
		return http.StatusLocked
	case saga.REASON_PAYMENT_FAILED:
		return http.StatusPaymentRequired
	case saga.REASON_PAYMENT_PENDING:
		return http.StatusAccepted
	case saga.REASON_GATEWAY_ERROR, saga.REASON_TRANSIENT_ERROR, saga.REASON_STALE_STATE:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeSagaError reports a failed command. The state is included when the
// saga got far enough to have one.
func writeSagaError(ctx context.Context, w http.ResponseWriter, correlationID string, state saga.State, err error) {
	logger := getLoggerFromCtx(ctx)

	var sagaErr *saga.Error
	if !errors.As(err, &sagaErr) {
		logger.Error("Unexpected saga error", slog.String("correlationId", correlationID), slog.String("error", err.Error()))
		writeError(ctx, w, http.StatusInternalServerError, InternalError, "Internal server error")
		return
	}

	statusCode := sagaStatusCode(sagaErr)
	if statusCode >= http.StatusInternalServerError {
		logger.Error("Saga command failed", slog.String("correlationId", correlationID), slog.String("error", err.Error()))
	} else {
		logger.Warn("Saga command rejected", slog.String("correlationId", correlationID), slog.String("reason", string(sagaErr.Reason)))
	}

	body := Error{
		Code:          ErrorCode(sagaErr.Reason),
		Message:       sagaErr.Message,
		Retryable:     ptr.To(sagaErr.Retryable),
		CorrelationId: ptr.To(correlationID),
	}
	if state.CorrelationID != "" {
		body.Phase = ptr.To(state.Phase.String())
		body.RecoveryAction = ptr.To(string(state.RecoveryAction()))
	}

	writeJSON(ctx, w, statusCode, body)
}
