package registration

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/cohouse-dinner/game-registration/events"
	"github.com/cohouse-dinner/game-registration/pricing"
	"github.com/cohouse-dinner/game-registration/slices"
	"github.com/google/uuid"
)

// Result is the outcome of a conditional registration write.
type Result int

const (
	REGISTERED Result = iota
	ALREADY_REGISTERED_SAME
	ALREADY_REGISTERED_CONFLICT
	CAPACITY_EXCEEDED
)

func (r Result) String() string {
	switch r {
	case REGISTERED:
		return "Registered"
	case ALREADY_REGISTERED_SAME:
		return "AlreadyRegisteredSame"
	case ALREADY_REGISTERED_CONFLICT:
		return "AlreadyRegisteredConflict"
	case CAPACITY_EXCEEDED:
		return "CapacityExceeded"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

type Repository interface {
	// TryRegister stores the record and reserves its seats in one atomic
	// step. Transient failures come back as *Error with IsTransient.
	TryRegister(ctx context.Context, record Record) (Result, error)
	GetRegistration(ctx context.Context, eventId uuid.UUID, cohouseId string) (Record, error)
	GetAllRegistrationsForEvent(ctx context.Context, eventId uuid.UUID, limit int32, cursor *string) (GetAllRegistrationsResponse, error)
}

type GetAllRegistrationsResponse struct {
	Data        []Record
	Cursor      *string
	HasNextPage bool
}

// Request is what a cohouse asks for when it signs up for an event.
type Request struct {
	EventID            uuid.UUID
	CohouseID          string
	AttendingMemberIDs []string
	AverageAge         int
	Category           Category
	ContactEmail       string
}

func (r Request) ParticipantCount() int {
	return len(r.AttendingMemberIDs)
}

func (r Request) Validate() error {
	if r.EventID == uuid.Nil {
		return NewInvalidRequestError("Event ID is required")
	}
	if strings.TrimSpace(r.CohouseID) == "" {
		return NewInvalidRequestError("Cohouse ID is required")
	}
	if len(r.AttendingMemberIDs) == 0 {
		return NewInvalidRequestError("At least one attending member is required")
	}
	for _, id := range r.AttendingMemberIDs {
		if strings.TrimSpace(id) == "" {
			return NewInvalidRequestError("Attending member IDs must not be blank")
		}
	}
	if !slices.Unique(r.AttendingMemberIDs) {
		return NewInvalidRequestError("Attending member IDs must be unique")
	}
	if r.AverageAge < 0 {
		return NewInvalidRequestError(fmt.Sprintf("Average age must not be negative, got %d", r.AverageAge))
	}
	if r.ContactEmail != "" {
		if _, err := mail.ParseAddress(r.ContactEmail); err != nil {
			return NewInvalidRequestError(fmt.Sprintf("Contact email %q is not valid", r.ContactEmail))
		}
	}
	return nil
}

// SameAs reports whether two requests describe the same registration,
// ignoring member order.
func (r Request) SameAs(other Request) bool {
	return r.EventID == other.EventID &&
		r.CohouseID == other.CohouseID &&
		r.AverageAge == other.AverageAge &&
		r.Category == other.Category &&
		slices.SameSet(r.AttendingMemberIDs, other.AttendingMemberIDs)
}

// Record is the ledger entry, at most one per event and cohouse.
type Record struct {
	EventID            uuid.UUID
	CohouseID          string
	AttendingMemberIDs []string
	AverageAge         int
	Category           Category
	PaymentIntentID    string
	AmountPaidCents    int64
	Currency           string
	CreatedAt          time.Time
}

func (r Record) ParticipantCount() int {
	return len(r.AttendingMemberIDs)
}

// AttemptRegistration is the server side write path. The captured amount is
// checked against a fresh computation from the event price before anything is
// written.
func AttemptRegistration(ctx context.Context, repo Repository, event events.Event, record Record, capturedCents int64) (Result, error) {
	if record.EventID != event.ID {
		return 0, NewInvalidRequestError(fmt.Sprintf("Record is for event %q, not %q", record.EventID, event.ID))
	}
	if record.PaymentIntentID == "" {
		return 0, NewInvalidRequestError("Payment intent ID is required")
	}

	err := pricing.VerifyCaptured(record.ParticipantCount(), event.PricePerPersonCents(), capturedCents)
	if err != nil {
		var pricingErr *pricing.Error
		if errors.As(err, &pricingErr) && pricingErr.Reason == pricing.REASON_AMOUNT_MISMATCH {
			return 0, NewAmountMismatchError(fmt.Sprintf("Captured amount does not match the price for cohouse %q", record.CohouseID), err)
		}
		return 0, NewInvalidRequestError(err.Error())
	}
	record.AmountPaidCents = capturedCents
	record.Currency = event.Currency()

	return repo.TryRegister(ctx, record)
}
