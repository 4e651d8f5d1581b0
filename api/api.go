package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cohouse-dinner/game-registration/events"
	"github.com/cohouse-dinner/game-registration/registration"
	"github.com/cohouse-dinner/game-registration/saga"
)

type Environment int

const (
	LOCAL Environment = iota
	PROD
)

func ParseEnvironment(s string) (Environment, error) {
	switch s {
	case "LOCAL":
		return LOCAL, nil
	case "PROD":
		return PROD, nil
	default:
		return LOCAL, fmt.Errorf("unknown environment %q", s)
	}
}

type DB interface {
	events.Repository
	registration.Repository
}

// RegistrationSaga is the command surface the registration endpoints drive.
type RegistrationSaga interface {
	StartRegistration(ctx context.Context, correlationID string, req registration.Request) (saga.PaymentSheet, error)
	ReportPaymentOutcome(ctx context.Context, correlationID string, outcome saga.ClientOutcome) (saga.State, error)
	SubmitRegistration(ctx context.Context, correlationID string) (saga.State, error)
	RetrySaga(ctx context.Context, correlationID string) (saga.State, error)
	CancelSaga(ctx context.Context, correlationID string, reason string) (saga.State, error)
	GetSagaState(ctx context.Context, correlationID string) (saga.State, error)
}

var _ RegistrationSaga = &saga.Saga{}

type API struct {
	db             DB
	saga           RegistrationSaga
	logger         *slog.Logger
	env            Environment
	allowedOrigins []string
}

func NewAPI(db DB, registrationSaga RegistrationSaga, logger *slog.Logger, env Environment, allowedOrigins []string) *API {
	return &API{
		db:             db,
		saga:           registrationSaga,
		logger:         logger,
		env:            env,
		allowedOrigins: allowedOrigins,
	}
}

// Handler returns the routed API wrapped in its middleware chain. The last
// middleware listed runs first.
func (a *API) Handler() (http.Handler, error) {
	swagger, err := GetSwagger()
	if err != nil {
		return nil, err
	}
	swagger.Servers = nil

	r := http.NewServeMux()
	a.routes(r)

	return useMiddlewares(r,
		a.openapiValidateMiddleware(swagger),
		a.loggingMiddleware(),
		a.corsMiddleware(),
	), nil
}

func (a *API) routes(r *http.ServeMux) {
	r.HandleFunc("GET /v1/events", a.GetEvents)
	r.HandleFunc("POST /v1/events", a.PostEvents)
	r.HandleFunc("GET /v1/events/{eventId}", a.GetEvent)
	r.HandleFunc("PUT /v1/events/{eventId}", a.PutEvent)
	r.HandleFunc("GET /v1/events/{eventId}/registrations", a.GetEventRegistrations)

	r.HandleFunc("GET /v1/registrations/{correlationId}", a.GetSagaState)
	r.HandleFunc("POST /v1/registrations/{correlationId}/start", a.StartRegistration)
	r.HandleFunc("POST /v1/registrations/{correlationId}/outcome", a.ReportPaymentOutcome)
	r.HandleFunc("POST /v1/registrations/{correlationId}/submit", a.SubmitRegistration)
	r.HandleFunc("POST /v1/registrations/{correlationId}/retry", a.RetrySaga)
	r.HandleFunc("POST /v1/registrations/{correlationId}/cancel", a.CancelSaga)
}
