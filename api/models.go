package api

import (
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"
)

type ErrorCode string

const (
	InputValidationError ErrorCode = "InputValidationError"
	InvalidCursor        ErrorCode = "InvalidCursor"
	LimitOutOfBounds     ErrorCode = "LimitOutOfBounds"
	InvalidBody          ErrorCode = "InvalidBody"
	InvalidEvent         ErrorCode = "InvalidEvent"
	NotFound             ErrorCode = "NotFound"
	Conflict             ErrorCode = "Conflict"
	Unavailable          ErrorCode = "Unavailable"
	InternalError        ErrorCode = "InternalError"
)

type Error struct {
	Code           ErrorCode `json:"code"`
	Message        string    `json:"message"`
	Retryable      *bool     `json:"retryable,omitempty"`
	CorrelationId  *string   `json:"correlationId,omitempty"`
	RecoveryAction *string   `json:"recoveryAction,omitempty"`
	Phase          *string   `json:"phase,omitempty"`
}

type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type EventInput struct {
	Name                 string    `json:"name"`
	StartTime            time.Time `json:"startTime"`
	RegistrationDeadline time.Time `json:"registrationDeadline"`
	PricePerPerson       Money     `json:"pricePerPerson"`
	MaxParticipants      int       `json:"maxParticipants"`
}

type SignUpStats struct {
	RegisteredParticipants int `json:"registeredParticipants"`
	RegisteredCohouses     int `json:"registeredCohouses"`
	RemainingSeats         int `json:"remainingSeats"`
}

type Event struct {
	Id openapi_types.UUID `json:"id"`
	EventInput
	SignUpStats SignUpStats `json:"signUpStats"`
}

type EventPage struct {
	Data        []Event `json:"data"`
	Cursor      *string `json:"cursor,omitempty"`
	HasNextPage bool    `json:"hasNextPage"`
}

type Category string

const (
	Mixed     Category = "mixed"
	GirlsOnly Category = "girlsOnly"
	BoysOnly  Category = "boysOnly"
)

type Registration struct {
	EventId            openapi_types.UUID `json:"eventId"`
	CohouseId          string             `json:"cohouseId"`
	AttendingMemberIds []string           `json:"attendingMemberIds"`
	AverageAge         int                `json:"averageAge"`
	Category           Category           `json:"category"`
	PaymentIntentId    string             `json:"paymentIntentId"`
	AmountPaid         Money              `json:"amountPaid"`
	CreatedAt          time.Time          `json:"createdAt"`
}

type RegistrationPage struct {
	Data        []Registration `json:"data"`
	Cursor      *string        `json:"cursor,omitempty"`
	HasNextPage bool           `json:"hasNextPage"`
}

type StartRegistrationRequest struct {
	EventId            openapi_types.UUID   `json:"eventId"`
	CohouseId          string               `json:"cohouseId"`
	AttendingMemberIds []string             `json:"attendingMemberIds"`
	AverageAge         int                  `json:"averageAge"`
	Category           Category             `json:"category"`
	ContactEmail       *openapi_types.Email `json:"contactEmail,omitempty"`
}

type PaymentSheet struct {
	CorrelationId   string `json:"correlationId"`
	PaymentIntentId string `json:"paymentIntentId"`
	ClientSecret    string `json:"clientSecret"`
	CustomerId      string `json:"customerId"`
	EphemeralKey    string `json:"ephemeralKey"`
	Amount          Money  `json:"amount"`
}

type PaymentOutcomeRequest struct {
	Outcome string `json:"outcome"`
}

type CancelRequest struct {
	Reason *string `json:"reason,omitempty"`
}

type SagaState struct {
	CorrelationId      string             `json:"correlationId"`
	Phase              string             `json:"phase"`
	FailedAt           *string            `json:"failedAt,omitempty"`
	RecoveryAction     string             `json:"recoveryAction"`
	EventId            openapi_types.UUID `json:"eventId"`
	CohouseId          string             `json:"cohouseId"`
	AttendingMemberIds []string           `json:"attendingMemberIds,omitempty"`
	Amount             *Money             `json:"amount,omitempty"`
	PaymentIntentId    *string            `json:"paymentIntentId,omitempty"`
	PaymentCaptured    bool               `json:"paymentCaptured"`
	ErrorReason        *string            `json:"errorReason,omitempty"`
	LastError          *string            `json:"lastError,omitempty"`
	Attempt            int                `json:"attempt"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
	CompletedAt        *time.Time         `json:"completedAt,omitempty"`
}
