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
	"github.com/cohouse-dinner/game-registration/slices"
	"github.com/google/uuid"
)

var _ registration.Repository = &DB{}

type registrationDynamo struct {
	PK string
	SK string

	EventID            string
	CohouseID          string
	AttendingMemberIDs []string
	AverageAge         int
	Category           string
	PaymentIntentID    string
	AmountPaidCents    int64
	Currency           string
	CreatedAt          time.Time
}

const (
	registrationEntityName = "REGISTRATION"

	cancellationConditionalCheckFailed = "ConditionalCheckFailed"
	cancellationTransactionConflict    = "TransactionConflict"
)

func registrationPK(eventId uuid.UUID) string {
	return eventPK(eventId)
}

func registrationSK(cohouseId string) string {
	return fmt.Sprintf("%s#%s", registrationEntityName, cohouseId)
}

func registrationToDynamo(record registration.Record) registrationDynamo {
	return registrationDynamo{
		PK:                 registrationPK(record.EventID),
		SK:                 registrationSK(record.CohouseID),
		EventID:            record.EventID.String(),
		CohouseID:          record.CohouseID,
		AttendingMemberIDs: record.AttendingMemberIDs,
		AverageAge:         record.AverageAge,
		Category:           record.Category.String(),
		PaymentIntentID:    record.PaymentIntentID,
		AmountPaidCents:    record.AmountPaidCents,
		Currency:           record.Currency,
		CreatedAt:          record.CreatedAt,
	}
}

func dynamoToRegistration(dynReg registrationDynamo) registration.Record {
	category, err := registration.ParseCategory(dynReg.Category)
	if err != nil {
		panic(fmt.Sprintf("unknown category stored in dynamo: %s", err))
	}

	return registration.Record{
		EventID:            uuid.MustParse(dynReg.EventID),
		CohouseID:          dynReg.CohouseID,
		AttendingMemberIDs: dynReg.AttendingMemberIDs,
		AverageAge:         dynReg.AverageAge,
		Category:           category,
		PaymentIntentID:    dynReg.PaymentIntentID,
		AmountPaidCents:    dynReg.AmountPaidCents,
		Currency:           dynReg.Currency,
		CreatedAt:          dynReg.CreatedAt,
	}
}

// TryRegister writes the ledger entry and moves the event counters in one
// transaction. The event update only applies while enough seats remain, so
// concurrent registrations can never oversell.
func (d *DB) TryRegister(ctx context.Context, record registration.Record) (registration.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	seats := record.ParticipantCount()
	if seats <= 0 {
		return 0, registration.NewInvalidRequestError("At least one attending member is required")
	}

	dynamoReg := registrationToDynamo(record)

	regItem, err := attributevalue.MarshalMap(dynamoReg)
	if err != nil {
		return 0, registration.NewFailedToTranslateToDBModelError("Failed to translate registration to dynamo model", err)
	}
	regExpr := exprMustBuild(expression.NewBuilder().
		WithCondition(expression.Name("PK").AttributeNotExists()))

	eventUpdate := expression.
		Add(expression.Name("RegisteredParticipantCount"), expression.Value(seats)).
		Add(expression.Name("RegisteredCohouseCount"), expression.Value(1)).
		Add(expression.Name("Version"), expression.Value(1)).
		Set(expression.Name("RemainingSeats"), expression.Minus(expression.Name("RemainingSeats"), expression.Value(seats)))
	eventCond := expression.Name("PK").AttributeExists().
		And(expression.Name("RemainingSeats").GreaterThanEqual(expression.Value(seats)))
	eventExpr := exprMustBuild(expression.NewBuilder().WithUpdate(eventUpdate).WithCondition(eventCond))

	_, err = d.dynamoClient.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:                           aws.String(d.tableName),
					Item:                                regItem,
					ConditionExpression:                 regExpr.Condition(),
					ExpressionAttributeNames:            regExpr.Names(),
					ExpressionAttributeValues:           regExpr.Values(),
					ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
				},
			},
			{
				Update: &types.Update{
					TableName:                           aws.String(d.tableName),
					Key:                                 eventKey(record.EventID),
					UpdateExpression:                    eventExpr.Update(),
					ConditionExpression:                 eventExpr.Condition(),
					ExpressionAttributeNames:            eventExpr.Names(),
					ExpressionAttributeValues:           eventExpr.Values(),
					ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
				},
			},
		},
	})
	if err == nil {
		return registration.REGISTERED, nil
	}

	var transactionFailedErr *types.TransactionCanceledException
	if errors.As(err, &transactionFailedErr) {
		return classifyCanceledRegistration(record, transactionFailedErr)
	} else if errors.Is(err, context.DeadlineExceeded) {
		return 0, registration.NewTimeoutError("TryRegister timed out", err)
	}
	return 0, registration.NewFailedToWriteError("Failed TransactWriteItems call", err)
}

func classifyCanceledRegistration(record registration.Record, err *types.TransactionCanceledException) (registration.Result, error) {
	reasons := err.CancellationReasons
	if len(reasons) != 2 {
		return 0, registration.NewFailedToWriteError("Unexpected transaction cancellation", err)
	}

	if isCancellationCode(reasons[0], cancellationConditionalCheckFailed) {
		var existing registrationDynamo
		if uerr := attributevalue.UnmarshalMap(reasons[0].Item, &existing); uerr != nil {
			panic(fmt.Sprintf("failed to unmarshal existing registration: %s", uerr))
		}
		if existing.PaymentIntentID == record.PaymentIntentID {
			return registration.ALREADY_REGISTERED_SAME, nil
		}
		return registration.ALREADY_REGISTERED_CONFLICT, nil
	}

	if isCancellationCode(reasons[1], cancellationConditionalCheckFailed) {
		if len(reasons[1].Item) == 0 {
			return 0, registration.NewAssociatedEventDoesNotExistError(fmt.Sprintf("Event with ID %q does not exist", record.EventID), err)
		}
		return registration.CAPACITY_EXCEEDED, nil
	}

	if isCancellationCode(reasons[0], cancellationTransactionConflict) || isCancellationCode(reasons[1], cancellationTransactionConflict) {
		return 0, registration.NewTransactionConflictError("Registration raced another write", err)
	}

	return 0, registration.NewFailedToWriteError("Registration transaction canceled", err)
}

func isCancellationCode(reason types.CancellationReason, code string) bool {
	return reason.Code != nil && *reason.Code == code
}

func (d *DB) GetRegistration(ctx context.Context, eventId uuid.UUID, cohouseId string) (registration.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := d.dynamoClient.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: registrationPK(eventId)},
			"SK": &types.AttributeValueMemberS{Value: registrationSK(cohouseId)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return registration.Record{}, registration.NewTimeoutError("GetRegistration timed out", err)
		}
		return registration.Record{}, registration.NewFailedToFetchError(fmt.Sprintf("Failed to fetch registration with event id %q and cohouse %q", eventId, cohouseId), err)
	}

	if len(resp.Item) == 0 {
		return registration.Record{}, registration.NewRegistrationDoesNotExistsError(fmt.Sprintf("Registration with event id %q and cohouse %q not found", eventId, cohouseId), nil)
	}

	var dynReg registrationDynamo
	err = attributevalue.UnmarshalMap(resp.Item, &dynReg)
	if err != nil {
		panic(fmt.Sprintf("failed to unmarshal registration from dynamo: %s", err))
	}

	return dynamoToRegistration(dynReg), nil
}

func (d *DB) GetAllRegistrationsForEvent(ctx context.Context, eventId uuid.UUID, limit int32, cursor *string) (registration.GetAllRegistrationsResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	keyCond := expression.Key("PK").Equal(expression.Value(registrationPK(eventId))).
		And(expression.Key("SK").BeginsWith(registrationEntityName))

	expr := exprMustBuild(expression.NewBuilder().WithKeyCondition(keyCond))

	startKey, err := startKeyFromCursor(cursor)
	if err != nil {
		return registration.GetAllRegistrationsResponse{}, registration.NewInvalidCursorError("Invalid cursor", err)
	}

	result, err := d.dynamoClient.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(d.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     aws.Int32(limit + 1),
		ExclusiveStartKey:         startKey,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return registration.GetAllRegistrationsResponse{}, registration.NewTimeoutError("GetAllRegistrationsForEvent timed out", err)
		}
		return registration.GetAllRegistrationsResponse{}, registration.NewFailedToFetchError("Failed to fetch registrations from dynamo", err)
	}

	var dynamoItems []registrationDynamo
	err = attributevalue.UnmarshalListOfMaps(result.Items, &dynamoItems)
	if err != nil {
		panic(fmt.Sprintf("failed to unmarshal dynamo registrations: %s", err))
	}

	newCursor, hasNextPage := nextPageCursor(result.Items, result.LastEvaluatedKey, limit)

	return registration.GetAllRegistrationsResponse{
		Data: slices.Map(dynamoItems, func(v registrationDynamo) registration.Record {
			return dynamoToRegistration(v)
		})[:min(int(limit), len(dynamoItems))],
		Cursor:      newCursor,
		HasNextPage: hasNextPage,
	}, nil
}
