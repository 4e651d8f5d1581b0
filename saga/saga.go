// Package saga coordinates payment capture and the registration write for
// one cohouse signing up for one event.
package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/cohouse-dinner/game-registration/events"
	"github.com/cohouse-dinner/game-registration/payments"
	"github.com/cohouse-dinner/game-registration/pricing"
	"github.com/cohouse-dinner/game-registration/registration"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/cohouse-dinner/game-registration/saga"

type EventReader interface {
	GetEvent(ctx context.Context, id uuid.UUID) (events.Event, error)
}

type Config struct {
	GatewayTimeout time.Duration
	StoreTimeout   time.Duration
	MaxTries       uint
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Retention is how long a terminal saga is kept for replays.
	Retention time.Duration
	// CommandTimeout caps the work done while holding a saga lock. It must be
	// shorter than the lock lease. Zero means no cap.
	CommandTimeout time.Duration
	Now            func() time.Time
}

func DefaultConfig() Config {
	return Config{
		GatewayTimeout: 10 * time.Second,
		StoreTimeout:   time.Second,
		MaxTries:       3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Retention:      7 * 24 * time.Hour,
		CommandTimeout: 45 * time.Second,
		Now:            time.Now,
	}
}

type Saga struct {
	store         Store
	locker        Locker
	events        EventReader
	registrations registration.Repository
	gateway       payments.Gateway
	notifier      Notifier
	logger        *slog.Logger
	tracer        trace.Tracer
	cfg           Config
}

func NewSaga(store Store, locker Locker, eventReader EventReader, registrations registration.Repository, gateway payments.Gateway, notifier Notifier, logger *slog.Logger, cfg Config) *Saga {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = 1
	}

	return &Saga{
		store:         store,
		locker:        locker,
		events:        eventReader,
		registrations: registrations,
		gateway:       gateway,
		notifier:      notifier,
		logger:        logger,
		tracer:        otel.Tracer(tracerName),
		cfg:           cfg,
	}
}

// StartRegistration begins a registration attempt, or picks an existing one
// back up, and returns the payment sheet for it. An intent is created at most
// once per correlation id.
func (s *Saga) StartRegistration(ctx context.Context, correlationID string, req registration.Request) (PaymentSheet, error) {
	ctx, span := s.startSpan(ctx, "saga.StartRegistration", correlationID)
	defer span.End()

	var sheet PaymentSheet
	err := s.withLock(ctx, correlationID, func(ctx context.Context) error {
		state, err := s.getState(ctx, correlationID)
		if err != nil {
			var sagaErr *Error
			if !errors.As(err, &sagaErr) || sagaErr.Reason != REASON_SAGA_DOES_NOT_EXIST {
				return err
			}
			state, err = s.begin(ctx, correlationID, req)
			if err != nil {
				return err
			}
		} else if !state.Request().SameAs(req) {
			return NewValidationError(REASON_REQUEST_MISMATCH, correlationID, "A different registration was already started with this correlation id", nil)
		}

		state, err = s.preparePayment(ctx, state)
		if err != nil {
			return err
		}
		sheet = state.PaymentSheet()
		return nil
	})
	recordSpanError(span, err)

	return sheet, err
}

// ReportPaymentOutcome resolves the payment with the gateway. When the gateway
// and the client disagree, the gateway wins.
func (s *Saga) ReportPaymentOutcome(ctx context.Context, correlationID string, outcome ClientOutcome) (State, error) {
	ctx, span := s.startSpan(ctx, "saga.ReportPaymentOutcome", correlationID)
	defer span.End()
	span.SetAttributes(attribute.String("clientOutcome", string(outcome)))

	var result State
	err := s.withLock(ctx, correlationID, func(ctx context.Context) error {
		state, err := s.getState(ctx, correlationID)
		if err != nil {
			return err
		}

		result, err = s.resume(ctx, state, outcome)
		return err
	})
	recordSpanError(span, err)

	return result, err
}

// SubmitRegistration commits the registration for a confirmed payment.
func (s *Saga) SubmitRegistration(ctx context.Context, correlationID string) (State, error) {
	ctx, span := s.startSpan(ctx, "saga.SubmitRegistration", correlationID)
	defer span.End()

	var result State
	err := s.withLock(ctx, correlationID, func(ctx context.Context) error {
		state, err := s.getState(ctx, correlationID)
		if err != nil {
			return err
		}

		result = state
		if state.Phase.IsTerminal() {
			return nil
		}
		if state.EffectivePhase() < PAYMENT_CONFIRMED {
			return NewInvalidTransitionError(correlationID, fmt.Sprintf("Payment is not confirmed, saga is %s", state.Phase))
		}

		result, err = s.register(ctx, state)
		return err
	})
	recordSpanError(span, err)

	return result, err
}

// RetrySaga resumes a saga from the last phase it completed. Completed steps
// are never repeated.
func (s *Saga) RetrySaga(ctx context.Context, correlationID string) (State, error) {
	ctx, span := s.startSpan(ctx, "saga.RetrySaga", correlationID)
	defer span.End()

	var result State
	err := s.withLock(ctx, correlationID, func(ctx context.Context) error {
		state, err := s.getState(ctx, correlationID)
		if err != nil {
			return err
		}

		result = state
		if state.Phase.IsTerminal() {
			return nil
		}

		next := state
		next.Attempt++
		state, err = s.persist(ctx, state, next)
		if err != nil {
			return err
		}
		result = state
		span.SetAttributes(attribute.Int("attempt", state.Attempt))

		if state.EffectivePhase() < INTENT_READY {
			result, err = s.preparePayment(ctx, state)
			return err
		}

		result, err = s.resume(ctx, state, CLIENT_UNKNOWN)
		return err
	})
	recordSpanError(span, err)

	return result, err
}

// CancelSaga is the operator escape hatch. It is refused once the
// registration write has started.
func (s *Saga) CancelSaga(ctx context.Context, correlationID string, reason string) (State, error) {
	ctx, span := s.startSpan(ctx, "saga.CancelSaga", correlationID)
	defer span.End()

	var result State
	err := s.withLock(ctx, correlationID, func(ctx context.Context) error {
		state, err := s.getState(ctx, correlationID)
		if err != nil {
			return err
		}

		result = state
		switch {
		case state.Phase == CANCELED:
			return nil
		case state.Phase.IsTerminal():
			return NewInvalidTransitionError(correlationID, fmt.Sprintf("Saga is already %s", state.Phase))
		case state.EffectivePhase() >= REGISTERING:
			return NewInvalidTransitionError(correlationID, "Saga can not be canceled once registering")
		}

		next := state
		if state.PaymentIntentID != "" && !state.PaymentCaptured {
			report, err := s.reportOutcome(ctx, state)
			if err != nil {
				return err
			}
			if report.Outcome == payments.OUTCOME_CAPTURED {
				next.PaymentCaptured = true
				next.CapturedAmountCents = report.AmountCapturedCents
			}
		}
		next.Phase = CANCELED
		next.LastError = fmt.Sprintf("Canceled by operator: %s", reason)
		next.ErrorReason = REASON_CANCELED_BY_OPERATOR

		result, err = s.transition(ctx, state, next)
		if err != nil {
			return err
		}
		if result.PaymentCaptured {
			s.notifyRefund(ctx, result, REASON_CANCELED_BY_OPERATOR)
		}
		return nil
	})
	recordSpanError(span, err)

	return result, err
}

func (s *Saga) GetSagaState(ctx context.Context, correlationID string) (State, error) {
	ctx, span := s.startSpan(ctx, "saga.GetSagaState", correlationID)
	defer span.End()

	state, err := s.getState(ctx, correlationID)
	recordSpanError(span, err)
	return state, err
}

// begin validates a new request and stores it. Nothing is persisted for a
// request that fails validation.
func (s *Saga) begin(ctx context.Context, correlationID string, req registration.Request) (State, error) {
	if len(req.AttendingMemberIDs) == 0 {
		return State{}, NewValidationError(REASON_EMPTY_SELECTION, correlationID, "At least one attending member must be selected", nil)
	}
	if err := req.Validate(); err != nil {
		return State{}, NewValidationError(REASON_VALIDATION_FAILED, correlationID, "Registration request is invalid", err)
	}

	state := newState(correlationID, req, s.cfg.Now())
	if _, _, err := s.quote(ctx, state); err != nil {
		return State{}, err
	}

	_, err := retryCall(ctx, s.cfg, s.cfg.StoreTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.store.CreateSaga(ctx, state)
	})
	if err != nil {
		var sagaErr *Error
		if errors.As(err, &sagaErr) && sagaErr.Reason == REASON_SAGA_ALREADY_EXISTS {
			return State{}, NewAlreadyInProgressError(correlationID)
		}
		return State{}, asSagaError(correlationID, "Failed to store saga", err)
	}

	s.logger.InfoContext(ctx, "saga created",
		slog.String("correlationId", correlationID),
		slog.String("eventId", req.EventID.String()),
		slog.String("cohouseId", req.CohouseID),
	)
	return state, nil
}

// quote checks the event still accepts the request and prices it.
func (s *Saga) quote(ctx context.Context, state State) (events.Event, int64, error) {
	event, err := s.getEvent(ctx, state)
	if err != nil {
		return events.Event{}, 0, err
	}

	if event.RegistrationClosed(s.cfg.Now()) {
		return event, 0, NewValidationError(REASON_DEADLINE_PASSED, state.CorrelationID, fmt.Sprintf("Registration closed at %s", event.RegistrationDeadline.Format(time.RFC3339)), nil)
	}
	count := len(state.AttendingMemberIDs)
	if count > event.RemainingSeats() {
		return event, 0, NewValidationError(REASON_EVENT_FULL, state.CorrelationID, fmt.Sprintf("Only %d seats left, %d requested", event.RemainingSeats(), count), nil)
	}

	price := event.PricePerPerson
	if price == nil {
		price = money.New(0, event.Currency())
	}
	amount, err := pricing.Compute(count, price)
	if err != nil {
		return event, 0, NewValidationError(REASON_VALIDATION_FAILED, state.CorrelationID, "Failed to compute the amount", err)
	}
	if !amount.IsPositive() {
		return event, 0, NewValidationError(REASON_VALIDATION_FAILED, state.CorrelationID, "Event has no price to charge", nil)
	}

	return event, amount.Amount(), nil
}

// preparePayment drives a saga up to AwaitingPaymentOutcome.
func (s *Saga) preparePayment(ctx context.Context, state State) (State, error) {
	if state.Phase.IsTerminal() {
		return state, NewInvalidTransitionError(state.CorrelationID, fmt.Sprintf("Saga is already %s", state.Phase))
	}

	var err error
	switch state.EffectivePhase() {
	case CREATED, INTENT_REQUESTED:
		state, err = s.requestIntent(ctx, state)
		if err != nil {
			return state, err
		}
		return s.advance(ctx, state, AWAITING_PAYMENT_OUTCOME)
	case INTENT_READY:
		return s.advance(ctx, state, AWAITING_PAYMENT_OUTCOME)
	case AWAITING_PAYMENT_OUTCOME:
		if state.Phase == FAILED_RETRYABLE {
			return s.advance(ctx, state, AWAITING_PAYMENT_OUTCOME)
		}
		return state, nil
	default:
		return state, NewInvalidTransitionError(state.CorrelationID, fmt.Sprintf("Payment was already confirmed, saga is %s", state.Phase))
	}
}

func (s *Saga) requestIntent(ctx context.Context, state State) (State, error) {
	// An assigned intent is never replaced.
	if state.PaymentIntentID != "" {
		return s.advance(ctx, state, INTENT_READY)
	}

	event, amount, err := s.quote(ctx, state)
	if err != nil {
		var sagaErr *Error
		if errors.As(err, &sagaErr) && sagaErr.IsValidation() {
			failed, saveErr := s.fail(ctx, state, state.EffectivePhase(), sagaErr)
			if saveErr != nil {
				return state, saveErr
			}
			return failed, sagaErr
		}
		return state, err
	}

	next := state
	next.Phase = INTENT_REQUESTED
	next.AmountCents = amount
	next.Currency = event.Currency()
	state, err = s.transition(ctx, state, next)
	if err != nil {
		return state, err
	}

	params := payments.IntentParams{
		AmountCents:    state.AmountCents,
		Currency:       state.Currency,
		IdempotencyKey: state.CorrelationID,
		Metadata: payments.Metadata{
			EventID:       state.EventID,
			CohouseID:     state.CohouseID,
			CorrelationID: state.CorrelationID,
		},
	}
	intent, err := retryCall(ctx, s.cfg, s.cfg.GatewayTimeout, func(ctx context.Context) (payments.Intent, error) {
		return s.gateway.CreateIntent(ctx, params)
	})
	if err != nil {
		sagaErr := NewGatewayError(state.CorrelationID, "Failed to create payment intent", isTransient(err), err)
		failed, saveErr := s.fail(ctx, state, INTENT_REQUESTED, sagaErr)
		if saveErr != nil {
			return state, saveErr
		}
		return failed, sagaErr
	}

	if intent.AmountCents != state.AmountCents {
		sagaErr := NewValidationError(REASON_AMOUNT_MISMATCH, state.CorrelationID, fmt.Sprintf("Gateway issued an intent for %d, expected %d", intent.AmountCents, state.AmountCents), nil)
		failed, saveErr := s.fail(ctx, state, INTENT_REQUESTED, sagaErr)
		if saveErr != nil {
			return state, saveErr
		}
		return failed, sagaErr
	}

	next = state
	next.Phase = INTENT_READY
	next.PaymentIntentID = intent.PaymentIntentID
	next.ClientSecret = intent.ClientSecret
	next.CustomerID = intent.CustomerID
	next.EphemeralKeySecret = intent.EphemeralKeySecret
	return s.transition(ctx, state, next)
}

// resume continues a saga that already has an intent.
func (s *Saga) resume(ctx context.Context, state State, outcome ClientOutcome) (State, error) {
	if state.Phase.IsTerminal() {
		return state, nil
	}

	switch phase := state.EffectivePhase(); {
	case phase >= PAYMENT_CONFIRMED:
		return s.register(ctx, state)
	case phase >= INTENT_READY && state.PaymentIntentID != "":
		return s.resolvePayment(ctx, state, outcome)
	default:
		return state, NewInvalidTransitionError(state.CorrelationID, fmt.Sprintf("No payment intent yet, saga is %s", state.Phase))
	}
}

// reportOutcome asks the gateway what happened to the intent. A failed query
// says nothing about the payment itself, so the error is always retryable.
func (s *Saga) reportOutcome(ctx context.Context, state State) (payments.OutcomeReport, error) {
	report, err := retryCall(ctx, s.cfg, s.cfg.GatewayTimeout, func(ctx context.Context) (payments.OutcomeReport, error) {
		return s.gateway.ReportOutcome(ctx, state.PaymentIntentID)
	})
	if err != nil {
		return report, NewGatewayError(state.CorrelationID, "Failed to fetch payment outcome", true, err)
	}
	return report, nil
}

func (s *Saga) resolvePayment(ctx context.Context, state State, outcome ClientOutcome) (State, error) {
	report, err := s.reportOutcome(ctx, state)
	if err != nil {
		var sagaErr *Error
		errors.As(err, &sagaErr)
		failed, saveErr := s.fail(ctx, state, AWAITING_PAYMENT_OUTCOME, sagaErr)
		if saveErr != nil {
			return state, saveErr
		}
		return failed, sagaErr
	}

	logger := s.logger.With(
		slog.String("correlationId", state.CorrelationID),
		slog.String("paymentIntentId", state.PaymentIntentID),
		slog.String("gatewayOutcome", string(report.Outcome)),
		slog.String("clientOutcome", string(outcome)),
	)

	switch report.Outcome {
	case payments.OUTCOME_CAPTURED:
		if outcome != CLIENT_CONFIRMED && outcome != CLIENT_UNKNOWN {
			logger.WarnContext(ctx, "gateway reports captured payment, overriding client outcome")
		}
		next := state
		next.Phase = PAYMENT_CONFIRMED
		next.PaymentCaptured = true
		next.CapturedAmountCents = report.AmountCapturedCents
		state, err = s.transition(ctx, state, next)
		if err != nil {
			return state, err
		}
		return s.register(ctx, state)

	case payments.OUTCOME_CANCELED:
		return s.advance(ctx, state, CANCELED)

	case payments.OUTCOME_FAILED:
		if outcome == CLIENT_UNKNOWN {
			// The intent is reusable, hand the sheet back for another attempt.
			return s.advance(ctx, state, AWAITING_PAYMENT_OUTCOME)
		}
		sagaErr := NewPaymentFailedError(state.CorrelationID, fmt.Sprintf("Payment failed: %s", report.FailureMessage))
		failed, saveErr := s.fail(ctx, state, AWAITING_PAYMENT_OUTCOME, sagaErr)
		if saveErr != nil {
			return state, saveErr
		}
		return failed, sagaErr

	case payments.OUTCOME_NOT_ATTEMPTED:
		switch outcome {
		case CLIENT_CANCELED:
			return s.advance(ctx, state, CANCELED)
		case CLIENT_FAILED:
			sagaErr := NewPaymentFailedError(state.CorrelationID, "Payment failed before reaching the gateway")
			failed, saveErr := s.fail(ctx, state, AWAITING_PAYMENT_OUTCOME, sagaErr)
			if saveErr != nil {
				return state, saveErr
			}
			return failed, sagaErr
		case CLIENT_CONFIRMED:
			logger.WarnContext(ctx, "client reports confirmed payment the gateway has not seen")
			return state, NewPaymentPendingError(state.CorrelationID, "Gateway has not seen a payment yet")
		default:
			return s.advance(ctx, state, AWAITING_PAYMENT_OUTCOME)
		}

	default:
		state, err = s.advance(ctx, state, AWAITING_PAYMENT_OUTCOME)
		if err != nil {
			return state, err
		}
		return state, NewPaymentPendingError(state.CorrelationID, "Payment is still processing")
	}
}

// register performs the conditional write, always with the saga's payment
// intent id, so a replay of a write that already landed resolves as
// AlreadyRegisteredSame.
func (s *Saga) register(ctx context.Context, state State) (State, error) {
	event, err := s.getEvent(ctx, state)
	if err != nil {
		var sagaErr *Error
		errors.As(err, &sagaErr)
		return s.failAndNotify(ctx, state, max(state.EffectivePhase(), PAYMENT_CONFIRMED), sagaErr)
	}

	if state.Phase != REGISTERING {
		state, err = s.advance(ctx, state, REGISTERING)
		if err != nil {
			return state, err
		}
	}

	record := state.Record(s.cfg.Now())
	result, err := retryCall(ctx, s.cfg, s.cfg.StoreTimeout, func(ctx context.Context) (registration.Result, error) {
		return registration.AttemptRegistration(ctx, s.registrations, event, record, state.CapturedAmountCents)
	})
	if err != nil {
		var regErr *registration.Error
		switch {
		case errors.As(err, &regErr) && regErr.Reason == registration.REASON_AMOUNT_MISMATCH:
			return s.failAndNotify(ctx, state, REGISTERING, NewValidationError(REASON_AMOUNT_MISMATCH, state.CorrelationID, "Captured amount does not match the event price", err))
		case isTransient(err):
			return s.failAndNotify(ctx, state, REGISTERING, NewTransientError(state.CorrelationID, "Failed to write registration", err))
		default:
			return s.failAndNotify(ctx, state, REGISTERING, NewInternalError(state.CorrelationID, "Registration was rejected", err))
		}
	}

	s.logger.InfoContext(ctx, "registration write finished",
		slog.String("correlationId", state.CorrelationID),
		slog.String("result", result.String()),
	)

	switch result {
	case registration.REGISTERED, registration.ALREADY_REGISTERED_SAME:
		next := state
		next.Phase = SUCCEEDED
		next.LastError = ""
		next.ErrorReason = ""
		state, err = s.transition(ctx, state, next)
		if err != nil {
			return state, err
		}
		if err := s.notifier.RegistrationConfirmed(ctx, state, event); err != nil {
			s.logger.ErrorContext(ctx, "failed to send registration confirmation", slog.String("correlationId", state.CorrelationID), slog.String("error", err.Error()))
		}
		return state, nil
	case registration.ALREADY_REGISTERED_CONFLICT:
		return s.failAndNotify(ctx, state, REGISTERING, NewAlreadyRegisteredConflictError(state.CorrelationID, "Cohouse is already registered with a different payment"))
	case registration.CAPACITY_EXCEEDED:
		return s.failAndNotify(ctx, state, REGISTERING, NewCapacityExceededError(state.CorrelationID, "Event is full, payment needs a manual refund"))
	default:
		return s.failAndNotify(ctx, state, REGISTERING, NewInternalError(state.CorrelationID, fmt.Sprintf("Unexpected registration result %s", result), nil))
	}
}

// failAndNotify records the failure and raises a refund alert when money was
// captured and the failure is final.
func (s *Saga) failAndNotify(ctx context.Context, state State, at Phase, sagaErr *Error) (State, error) {
	failed, err := s.fail(ctx, state, at, sagaErr)
	if err != nil {
		return state, err
	}
	if failed.Phase == FAILED_TERMINAL && failed.PaymentCaptured {
		s.notifyRefund(ctx, failed, sagaErr.Reason)
	}
	return failed, sagaErr
}

func (s *Saga) notifyRefund(ctx context.Context, state State, reason ErrorReason) {
	s.logger.ErrorContext(ctx, "captured payment requires a refund",
		slog.String("correlationId", state.CorrelationID),
		slog.String("paymentIntentId", state.PaymentIntentID),
		slog.Int64("amountCents", state.CapturedAmountCents),
		slog.String("reason", string(reason)),
	)
	if err := s.notifier.RefundRequired(ctx, state, reason); err != nil {
		s.logger.ErrorContext(ctx, "failed to send refund alert", slog.String("correlationId", state.CorrelationID), slog.String("error", err.Error()))
	}
}

func (s *Saga) getEvent(ctx context.Context, state State) (events.Event, error) {
	event, err := retryCall(ctx, s.cfg, s.cfg.StoreTimeout, func(ctx context.Context) (events.Event, error) {
		return s.events.GetEvent(ctx, state.EventID)
	})
	if err != nil {
		var eventErr *events.Error
		if errors.As(err, &eventErr) && eventErr.Reason == events.REASON_EVENT_DOES_NOT_EXIST {
			return event, NewEventDoesNotExistError(state.CorrelationID, fmt.Sprintf("Event %q does not exist", state.EventID), err)
		}
		return event, asSagaError(state.CorrelationID, fmt.Sprintf("Failed to fetch event %q", state.EventID), err)
	}
	return event, nil
}

func (s *Saga) getState(ctx context.Context, correlationID string) (State, error) {
	state, err := retryCall(ctx, s.cfg, s.cfg.StoreTimeout, func(ctx context.Context) (State, error) {
		return s.store.GetSaga(ctx, correlationID)
	})
	if err != nil {
		return state, asSagaError(correlationID, "Failed to load saga", err)
	}
	return state, nil
}

func (s *Saga) advance(ctx context.Context, state State, to Phase) (State, error) {
	next := state
	next.Phase = to
	return s.transition(ctx, state, next)
}

func (s *Saga) fail(ctx context.Context, state State, at Phase, sagaErr *Error) (State, error) {
	next := state
	next.LastError = sagaErr.Error()
	next.ErrorReason = sagaErr.Reason
	if sagaErr.Retryable {
		next.Phase = FAILED_RETRYABLE
		next.FailedAt = at
	} else {
		next.Phase = FAILED_TERMINAL
	}

	s.logger.WarnContext(ctx, "saga step failed",
		slog.String("correlationId", state.CorrelationID),
		slog.String("phase", state.Phase.String()),
		slog.String("reason", string(sagaErr.Reason)),
		slog.Bool("retryable", sagaErr.Retryable),
	)
	return s.transition(ctx, state, next)
}

func (s *Saga) transition(ctx context.Context, prev, next State) (State, error) {
	if next.Phase != prev.Phase && !canTransition(prev.Phase, next.Phase) {
		return prev, NewInvalidTransitionError(prev.CorrelationID, fmt.Sprintf("Saga can not move from %s to %s", prev.Phase, next.Phase))
	}

	saved, err := s.persist(ctx, prev, next)
	if err != nil {
		return prev, err
	}
	if saved.Phase != prev.Phase {
		s.logger.InfoContext(ctx, "saga transitioned",
			slog.String("correlationId", saved.CorrelationID),
			slog.String("from", prev.Phase.String()),
			slog.String("to", saved.Phase.String()),
			slog.Int("version", saved.Version),
		)
	}
	return saved, nil
}

// persist writes next over prev. The store rejects the write if someone else
// wrote in between, so a stale result is never kept.
func (s *Saga) persist(ctx context.Context, prev, next State) (State, error) {
	if err := checkProgress(prev, next); err != nil {
		return prev, err
	}

	now := s.cfg.Now()
	next.Version = prev.Version + 1
	next.UpdatedAt = now
	if next.Phase.IsTerminal() {
		expiresAt := now.Add(s.cfg.Retention)
		next.CompletedAt = &now
		next.ExpiresAt = &expiresAt
	}

	_, err := retryCall(ctx, s.cfg, s.cfg.StoreTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.store.UpdateSaga(ctx, next)
	})
	if err != nil {
		return prev, asSagaError(prev.CorrelationID, "Failed to save saga", err)
	}
	return next, nil
}

func (s *Saga) withLock(ctx context.Context, correlationID string, fn func(ctx context.Context) error) error {
	if correlationID == "" {
		return NewValidationError(REASON_VALIDATION_FAILED, correlationID, "Correlation id is required", nil)
	}

	lock, err := s.locker.Lock(ctx, correlationID)
	if err != nil {
		return asSagaError(correlationID, "Failed to acquire saga lock", err)
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.ErrorContext(ctx, "failed to release saga lock", slog.String("correlationId", correlationID), slog.String("error", err.Error()))
		}
	}()

	if s.cfg.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.CommandTimeout)
		defer cancel()
	}
	return fn(ctx)
}

func (s *Saga) startSpan(ctx context.Context, name, correlationID string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("correlationId", correlationID)))
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// asSagaError keeps saga errors as they are and classifies anything else.
func asSagaError(correlationID, message string, err error) *Error {
	var sagaErr *Error
	if errors.As(err, &sagaErr) {
		if sagaErr.CorrelationID == "" {
			sagaErr.CorrelationID = correlationID
		}
		return sagaErr
	}
	if isTransient(err) {
		return NewTransientError(correlationID, message, err)
	}
	return NewInternalError(correlationID, message, err)
}
