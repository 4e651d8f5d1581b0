package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cohouse-dinner/game-registration/events"
	"github.com/cohouse-dinner/game-registration/slices"
	"github.com/google/uuid"
)

var _ events.Repository = &DB{}

type eventDynamo struct {
	PK                         string
	SK                         string
	GSI1PK                     string
	GSI1SK                     string
	ID                         string
	Version                    int
	Name                       string
	StartTime                  time.Time
	RegistrationDeadline       time.Time
	PriceAmount                int64
	PriceCurrency              string
	MaxParticipants            int
	RegisteredParticipantCount int
	RegisteredCohouseCount     int
	// RemainingSeats is denormalized so the registration write can guard
	// capacity with a single comparison.
	RemainingSeats int
}

const (
	eventEntityName = "EVENT"
)

func eventPK(id uuid.UUID) string {
	return fmt.Sprintf("%s#%s", eventEntityName, id)
}

func eventSK(id uuid.UUID) string {
	return fmt.Sprintf("%s#%s", eventEntityName, id)
}

func eventKey(id uuid.UUID) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: eventPK(id)},
		"SK": &types.AttributeValueMemberS{Value: eventSK(id)},
	}
}

func newEventDynamo(event events.Event) eventDynamo {
	return eventDynamo{
		PK:                         eventPK(event.ID),
		SK:                         eventSK(event.ID),
		GSI1PK:                     eventEntityName,
		GSI1SK:                     fmt.Sprintf("%s#%s#%s", eventEntityName, event.StartTime.UTC().Format(time.RFC3339), event.ID),
		ID:                         event.ID.String(),
		Version:                    event.Version,
		Name:                       event.Name,
		StartTime:                  event.StartTime,
		RegistrationDeadline:       event.RegistrationDeadline,
		PriceAmount:                event.PricePerPersonCents(),
		PriceCurrency:              event.Currency(),
		MaxParticipants:            event.MaxParticipants,
		RegisteredParticipantCount: event.RegisteredParticipantCount,
		RegisteredCohouseCount:     event.RegisteredCohouseCount,
		RemainingSeats:             event.MaxParticipants - event.RegisteredParticipantCount,
	}
}

func eventFromEventDynamo(event eventDynamo) events.Event {
	return events.Event{
		ID:                         uuid.MustParse(event.ID),
		Version:                    event.Version,
		Name:                       event.Name,
		StartTime:                  event.StartTime,
		RegistrationDeadline:       event.RegistrationDeadline,
		PricePerPerson:             money.New(event.PriceAmount, event.PriceCurrency),
		MaxParticipants:            event.MaxParticipants,
		RegisteredParticipantCount: event.RegisteredParticipantCount,
		RegisteredCohouseCount:     event.RegisteredCohouseCount,
	}
}

func (d *DB) GetEvent(ctx context.Context, id uuid.UUID) (events.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := d.dynamoClient.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.tableName),
		Key:            eventKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return events.Event{}, events.NewTimeoutError("GetEvent timed out")
		}
		return events.Event{}, events.NewFailedToFetchError(fmt.Sprintf("Failed to fetch event with ID %q", id), err)
	}

	if len(resp.Item) == 0 {
		return events.Event{}, events.NewEventDoesNotExistsError(fmt.Sprintf("Event with ID %q not found", id), nil)
	}

	var event eventDynamo
	err = attributevalue.UnmarshalMap(resp.Item, &event)
	if err != nil {
		panic(fmt.Sprintf("failed to unmarshal event from DB: %s", err))
	}
	return eventFromEventDynamo(event), nil
}

func (d *DB) CreateEvent(ctx context.Context, event events.Event) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	dynamoItem := newEventDynamo(event)

	item, err := attributevalue.MarshalMap(dynamoItem)
	if err != nil {
		return events.NewFailedToTranslateToDBModelError("Failed to convert Event to eventDynamo", err)
	}

	expr := exprMustBuild(expression.NewBuilder().
		WithCondition(newEntityVersionConditional(dynamoItem.Version)))

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
			return events.NewEventAlreadyExistsError(fmt.Sprintf("Event with ID %q already exists", event.ID), err)
		} else if errors.Is(err, context.DeadlineExceeded) {
			return events.NewTimeoutError("CreateEvent timed out")
		} else {
			return events.NewFailedToWriteError("Failed PutItem call", err)
		}
	}

	return nil
}

func (d *DB) GetEvents(ctx context.Context, limit int32, cursor *string) (events.GetEventsResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	keyCond := expression.Key("GSI1PK").Equal(expression.Value(eventEntityName)).
		And(expression.Key("GSI1SK").BeginsWith(eventEntityName))

	expr := exprMustBuild(expression.NewBuilder().WithKeyCondition(keyCond))

	startKey, err := startKeyFromCursor(cursor)
	if err != nil {
		return events.GetEventsResponse{}, events.NewInvalidCursorError("Invalid cursor", err)
	}

	result, err := d.dynamoClient.Query(ctx, &dynamodb.QueryInput{
		IndexName:                 aws.String(gsi1),
		TableName:                 aws.String(d.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		// Newest event first
		ScanIndexForward:  aws.Bool(false),
		Limit:             aws.Int32(limit + 1),
		ExclusiveStartKey: startKey,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return events.GetEventsResponse{}, events.NewTimeoutError("GetEvents timed out")
		}
		return events.GetEventsResponse{}, events.NewFailedToFetchError("Failed to fetch events from dynamo", err)
	}

	var dynamoItems []eventDynamo
	err = attributevalue.UnmarshalListOfMaps(result.Items, &dynamoItems)
	if err != nil {
		panic(fmt.Sprintf("failed to unmarshal dynamo events: %s", err))
	}

	newCursor, hasNextPage := nextPageCursor(result.Items, result.LastEvaluatedKey, limit)

	return events.GetEventsResponse{
		Data: slices.Map(dynamoItems, func(v eventDynamo) events.Event {
			return eventFromEventDynamo(v)
		})[:min(int(limit), len(dynamoItems))],
		Cursor:      newCursor,
		HasNextPage: hasNextPage,
	}, nil
}

// UpdateEvent rewrites the editable fields only. The counters are owned by
// TryRegister, so they are left alone and RemainingSeats is recomputed
// against the stored participant count.
func (d *DB) UpdateEvent(ctx context.Context, event events.Event) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	dynamoItem := newEventDynamo(event)

	update := expression.
		Set(expression.Name("Version"), expression.Value(dynamoItem.Version)).
		Set(expression.Name("Name"), expression.Value(dynamoItem.Name)).
		Set(expression.Name("StartTime"), expression.Value(dynamoItem.StartTime)).
		Set(expression.Name("RegistrationDeadline"), expression.Value(dynamoItem.RegistrationDeadline)).
		Set(expression.Name("PriceAmount"), expression.Value(dynamoItem.PriceAmount)).
		Set(expression.Name("PriceCurrency"), expression.Value(dynamoItem.PriceCurrency)).
		Set(expression.Name("MaxParticipants"), expression.Value(dynamoItem.MaxParticipants)).
		Set(expression.Name("GSI1SK"), expression.Value(dynamoItem.GSI1SK)).
		Set(expression.Name("RemainingSeats"),
			expression.Minus(expression.Value(dynamoItem.MaxParticipants), expression.Name("RegisteredParticipantCount")))

	cond := existingEntityVersionConditional(dynamoItem.Version).
		And(expression.Name("RegisteredParticipantCount").LessThanEqual(expression.Value(dynamoItem.MaxParticipants)))

	expr := exprMustBuild(expression.NewBuilder().WithUpdate(update).WithCondition(cond))

	_, err := d.dynamoClient.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(d.tableName),
		Key:                                 eventKey(event.ID),
		UpdateExpression:                    expr.Update(),
		ConditionExpression:                 expr.Condition(),
		ExpressionAttributeNames:            expr.Names(),
		ExpressionAttributeValues:           expr.Values(),
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var condCheckFailedErr *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckFailedErr) {
			if len(condCheckFailedErr.Item) == 0 {
				return events.NewEventDoesNotExistsError(fmt.Sprintf("Event with ID %q does not exist", event.ID), err)
			}
			var stored eventDynamo
			if uerr := attributevalue.UnmarshalMap(condCheckFailedErr.Item, &stored); uerr != nil {
				panic(fmt.Sprintf("failed to unmarshal event from DB: %s", uerr))
			}
			if stored.Version != event.Version-1 {
				return events.NewVersionConflictError(fmt.Sprintf("Event with ID %q is at version %d", event.ID, stored.Version), err)
			}
			return events.NewInvalidEventError(fmt.Sprintf("MaxParticipants %d is below the %d registered participants", event.MaxParticipants, stored.RegisteredParticipantCount))
		} else if errors.Is(err, context.DeadlineExceeded) {
			return events.NewTimeoutError("UpdateEvent timed out")
		} else {
			return events.NewFailedToWriteError("Failed UpdateItem call", err)
		}
	}

	return nil
}
