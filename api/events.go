package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Rhymond/go-money"
	"github.com/cohouse-dinner/game-registration/events"
	"github.com/cohouse-dinner/game-registration/slices"
	openapi_types "github.com/oapi-codegen/runtime/types"
)

func (a *API) GetEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := getLoggerFromCtx(ctx)

	limit, cursor, err := bindPageParams(r)
	if err != nil {
		writePageParamError(ctx, w, err)
		return
	}

	result, err := a.db.GetEvents(ctx, limit, cursor)
	if err != nil {
		logger.Error("Failed to get events from the DB", slog.String("error", err.Error()))

		var eventErr *events.Error
		if errors.As(err, &eventErr) {
			switch eventErr.Reason {
			case events.REASON_INVALID_CURSOR:
				writeError(ctx, w, http.StatusBadRequest, InvalidCursor, "Passed in cursor is invalid")
				return
			}
		}
		writeError(ctx, w, http.StatusInternalServerError, InternalError, "Internal server error")
		return
	}

	writeJSON(ctx, w, http.StatusOK, EventPage{
		Data: slices.Map(result.Data, func(v events.Event) Event {
			return eventToApiEvent(v)
		}),
		Cursor:      result.Cursor,
		HasNextPage: result.HasNextPage,
	})
}

func (a *API) PostEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := getLoggerFromCtx(ctx)

	var body EventInput
	if err := decodeBody(r, &body); err != nil {
		writeError(ctx, w, http.StatusBadRequest, InvalidBody, "Must specify a valid JSON body")
		return
	}

	event, err := events.CreateEvent(ctx, a.db, apiEventInputToEvent(body))
	if err != nil {
		var eventErr *events.Error
		if errors.As(err, &eventErr) && eventErr.Reason == events.REASON_INVALID_EVENT {
			writeError(ctx, w, http.StatusBadRequest, InvalidEvent, eventErr.Message)
			return
		}

		logger.Error("Failed to create an event", slog.String("error", err.Error()))
		writeError(ctx, w, http.StatusInternalServerError, InternalError, "Failed to create the event")
		return
	}

	writeJSON(ctx, w, http.StatusOK, eventToApiEvent(event))
}

func (a *API) GetEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := getLoggerFromCtx(ctx)

	var id openapi_types.UUID
	if err := bindPathParam(r, "eventId", &id); err != nil {
		writeError(ctx, w, http.StatusBadRequest, InputValidationError, err.Error())
		return
	}

	event, err := a.db.GetEvent(ctx, id)
	if err != nil {
		var eventErr *events.Error
		if errors.As(err, &eventErr) {
			switch eventErr.Reason {
			case events.REASON_EVENT_DOES_NOT_EXIST:
				writeError(ctx, w, http.StatusNotFound, NotFound, "Event does not exist")
				return
			}
		}

		logger.Error("Failed to fetch an event", slog.String("error", err.Error()))
		writeError(ctx, w, http.StatusInternalServerError, InternalError, "Failed to get event")
		return
	}

	writeJSON(ctx, w, http.StatusOK, eventToApiEvent(event))
}

func (a *API) PutEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := getLoggerFromCtx(ctx)

	var id openapi_types.UUID
	if err := bindPathParam(r, "eventId", &id); err != nil {
		writeError(ctx, w, http.StatusBadRequest, InputValidationError, err.Error())
		return
	}

	var body EventInput
	if err := decodeBody(r, &body); err != nil {
		writeError(ctx, w, http.StatusBadRequest, InvalidBody, "Must specify a valid JSON body")
		return
	}

	event, err := events.UpdateEvent(ctx, a.db, id, apiEventInputToEvent(body))
	if err != nil {
		var eventErr *events.Error
		if errors.As(err, &eventErr) {
			switch eventErr.Reason {
			case events.REASON_INVALID_EVENT:
				writeError(ctx, w, http.StatusBadRequest, InvalidEvent, eventErr.Message)
				return
			case events.REASON_EVENT_DOES_NOT_EXIST:
				writeError(ctx, w, http.StatusNotFound, NotFound, "Event does not exist")
				return
			case events.REASON_VERSION_CONFLICT:
				writeError(ctx, w, http.StatusConflict, Conflict, "Event changed while updating, try again")
				return
			}
		}

		logger.Error("Failed to update an event", slog.String("error", err.Error()))
		writeError(ctx, w, http.StatusInternalServerError, InternalError, "Failed to update the event")
		return
	}

	writeJSON(ctx, w, http.StatusOK, eventToApiEvent(event))
}

func eventToApiEvent(event events.Event) Event {
	return Event{
		Id: event.ID,
		EventInput: EventInput{
			Name:                 event.Name,
			StartTime:            event.StartTime,
			RegistrationDeadline: event.RegistrationDeadline,
			PricePerPerson: Money{
				Amount:   event.PricePerPersonCents(),
				Currency: event.Currency(),
			},
			MaxParticipants: event.MaxParticipants,
		},
		SignUpStats: SignUpStats{
			RegisteredParticipants: event.RegisteredParticipantCount,
			RegisteredCohouses:     event.RegisteredCohouseCount,
			RemainingSeats:         event.RemainingSeats(),
		},
	}
}

func apiEventInputToEvent(event EventInput) events.Event {
	return events.Event{
		Name:                 event.Name,
		StartTime:            event.StartTime,
		RegistrationDeadline: event.RegistrationDeadline,
		PricePerPerson:       money.New(event.PricePerPerson.Amount, event.PricePerPerson.Currency),
		MaxParticipants:      event.MaxParticipants,
	}
}
