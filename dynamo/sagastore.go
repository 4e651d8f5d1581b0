package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cohouse-dinner/game-registration/registration"
	"github.com/cohouse-dinner/game-registration/saga"
	"github.com/google/uuid"
)

var _ saga.Store = &DB{}

type sagaDynamo struct {
	PK string
	SK string

	CorrelationID string
	Version       int

	EventID            string
	CohouseID          string
	AttendingMemberIDs []string
	AverageAge         int
	Category           string
	ContactEmail       string

	Phase    string
	FailedAt string

	AmountCents        int64
	Currency           string
	PaymentIntentID    string
	ClientSecret       string
	CustomerID         string
	EphemeralKeySecret string

	PaymentCaptured     bool
	CapturedAmountCents int64

	LastError   string
	ErrorReason string
	Attempt     int

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
	// Epoch seconds, picked up by the table TTL.
	ExpiresAt *int64 `dynamodbav:",omitempty"`
}

const (
	sagaEntityName = "SAGA"
)

func sagaPK(correlationID string) string {
	return fmt.Sprintf("%s#%s", sagaEntityName, correlationID)
}

func sagaSK(correlationID string) string {
	return fmt.Sprintf("%s#%s", sagaEntityName, correlationID)
}

func sagaToDynamo(state saga.State) sagaDynamo {
	var expiresAt *int64
	if state.ExpiresAt != nil {
		epoch := state.ExpiresAt.Unix()
		expiresAt = &epoch
	}

	return sagaDynamo{
		PK:                  sagaPK(state.CorrelationID),
		SK:                  sagaSK(state.CorrelationID),
		CorrelationID:       state.CorrelationID,
		Version:             state.Version,
		EventID:             state.EventID.String(),
		CohouseID:           state.CohouseID,
		AttendingMemberIDs:  state.AttendingMemberIDs,
		AverageAge:          state.AverageAge,
		Category:            state.Category.String(),
		ContactEmail:        state.ContactEmail,
		Phase:               state.Phase.String(),
		FailedAt:            state.FailedAt.String(),
		AmountCents:         state.AmountCents,
		Currency:            state.Currency,
		PaymentIntentID:     state.PaymentIntentID,
		ClientSecret:        state.ClientSecret,
		CustomerID:          state.CustomerID,
		EphemeralKeySecret:  state.EphemeralKeySecret,
		PaymentCaptured:     state.PaymentCaptured,
		CapturedAmountCents: state.CapturedAmountCents,
		LastError:           state.LastError,
		ErrorReason:         string(state.ErrorReason),
		Attempt:             state.Attempt,
		CreatedAt:           state.CreatedAt,
		UpdatedAt:           state.UpdatedAt,
		CompletedAt:         state.CompletedAt,
		ExpiresAt:           expiresAt,
	}
}

func dynamoToSaga(item sagaDynamo) (saga.State, error) {
	phase, err := saga.ParsePhase(item.Phase)
	if err != nil {
		return saga.State{}, err
	}
	failedAt, err := saga.ParsePhase(item.FailedAt)
	if err != nil {
		return saga.State{}, err
	}
	category, err := registration.ParseCategory(item.Category)
	if err != nil {
		return saga.State{}, err
	}
	eventID, err := uuid.Parse(item.EventID)
	if err != nil {
		return saga.State{}, err
	}

	var expiresAt *time.Time
	if item.ExpiresAt != nil {
		t := time.Unix(*item.ExpiresAt, 0).UTC()
		expiresAt = &t
	}

	return saga.State{
		CorrelationID:       item.CorrelationID,
		Version:             item.Version,
		EventID:             eventID,
		CohouseID:           item.CohouseID,
		AttendingMemberIDs:  item.AttendingMemberIDs,
		AverageAge:          item.AverageAge,
		Category:            category,
		ContactEmail:        item.ContactEmail,
		Phase:               phase,
		FailedAt:            failedAt,
		AmountCents:         item.AmountCents,
		Currency:            item.Currency,
		PaymentIntentID:     item.PaymentIntentID,
		ClientSecret:        item.ClientSecret,
		CustomerID:          item.CustomerID,
		EphemeralKeySecret:  item.EphemeralKeySecret,
		PaymentCaptured:     item.PaymentCaptured,
		CapturedAmountCents: item.CapturedAmountCents,
		LastError:           item.LastError,
		ErrorReason:         saga.ErrorReason(item.ErrorReason),
		Attempt:             item.Attempt,
		CreatedAt:           item.CreatedAt,
		UpdatedAt:           item.UpdatedAt,
		CompletedAt:         item.CompletedAt,
		ExpiresAt:           expiresAt,
	}, nil
}

func (d *DB) expired(item sagaDynamo) bool {
	return item.ExpiresAt != nil && *item.ExpiresAt < d.now().Unix()
}

// CreateSaga also succeeds over an expired record that the table TTL has not
// swept yet.
func (d *DB) CreateSaga(ctx context.Context, state saga.State) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if state.Version != 1 {
		return saga.NewStaleStateError(state.CorrelationID, fmt.Errorf("new saga must be at version 1, got %d", state.Version))
	}

	item, err := attributevalue.MarshalMap(sagaToDynamo(state))
	if err != nil {
		return saga.NewFailedToTranslateDBModelError(state.CorrelationID, err)
	}

	cond := expression.Name("PK").AttributeNotExists().
		Or(expression.Name(ttlAttribute).LessThan(expression.Value(d.now().Unix())))
	expr := exprMustBuild(expression.NewBuilder().WithCondition(cond))

	_, err = d.dynamoClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(d.tableName),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var condCheckFailedErr *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckFailedErr) {
			return saga.NewSagaAlreadyExistsError(state.CorrelationID, err)
		} else if errors.Is(err, context.DeadlineExceeded) {
			return saga.NewTransientError(state.CorrelationID, "CreateSaga timed out", err)
		}
		return saga.NewTransientError(state.CorrelationID, "Failed PutItem call", err)
	}

	return nil
}

func (d *DB) GetSaga(ctx context.Context, correlationID string) (saga.State, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := d.dynamoClient.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: sagaPK(correlationID)},
			"SK": &types.AttributeValueMemberS{Value: sagaSK(correlationID)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return saga.State{}, saga.NewTransientError(correlationID, "GetSaga timed out", err)
		}
		return saga.State{}, saga.NewTransientError(correlationID, "Failed GetItem call", err)
	}

	if len(resp.Item) == 0 {
		return saga.State{}, saga.NewSagaDoesNotExistError(correlationID, nil)
	}

	var item sagaDynamo
	err = attributevalue.UnmarshalMap(resp.Item, &item)
	if err != nil {
		panic(fmt.Sprintf("failed to unmarshal saga from dynamo: %s", err))
	}
	if d.expired(item) {
		return saga.State{}, saga.NewSagaDoesNotExistError(correlationID, nil)
	}

	state, err := dynamoToSaga(item)
	if err != nil {
		return saga.State{}, saga.NewFailedToTranslateDBModelError(correlationID, err)
	}
	return state, nil
}

func (d *DB) UpdateSaga(ctx context.Context, state saga.State) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	item, err := attributevalue.MarshalMap(sagaToDynamo(state))
	if err != nil {
		return saga.NewFailedToTranslateDBModelError(state.CorrelationID, err)
	}

	expr := exprMustBuild(expression.NewBuilder().
		WithCondition(existingEntityVersionConditional(state.Version)))

	_, err = d.dynamoClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                           aws.String(d.tableName),
		Item:                                item,
		ConditionExpression:                 expr.Condition(),
		ExpressionAttributeNames:            expr.Names(),
		ExpressionAttributeValues:           expr.Values(),
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var condCheckFailedErr *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckFailedErr) {
			if len(condCheckFailedErr.Item) == 0 {
				return saga.NewSagaDoesNotExistError(state.CorrelationID, err)
			}
			return saga.NewStaleStateError(state.CorrelationID, err)
		} else if errors.Is(err, context.DeadlineExceeded) {
			return saga.NewTransientError(state.CorrelationID, "UpdateSaga timed out", err)
		}
		return saga.NewTransientError(state.CorrelationID, "Failed PutItem call", err)
	}

	return nil
}
