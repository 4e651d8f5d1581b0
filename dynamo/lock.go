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
	"github.com/cohouse-dinner/game-registration/saga"
	"github.com/google/uuid"
)

const (
	lockEntityName = "LOCK"
)

type lockDynamo struct {
	PK         string
	SK         string
	Owner      string
	LeaseUntil int64
	ExpiresAt  int64
}

func lockPK(correlationID string) string {
	return fmt.Sprintf("%s#%s", lockEntityName, correlationID)
}

func lockKey(correlationID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: lockPK(correlationID)},
		"SK": &types.AttributeValueMemberS{Value: lockPK(correlationID)},
	}
}

var _ saga.Locker = &LeaseLocker{}

// LeaseLocker holds per saga locks as leased items in the same table. A
// crashed holder blocks the saga for at most one lease.
type LeaseLocker struct {
	db    *DB
	lease time.Duration
}

func NewLeaseLocker(db *DB, lease time.Duration) *LeaseLocker {
	return &LeaseLocker{db: db, lease: lease}
}

func (l *LeaseLocker) Lock(ctx context.Context, correlationID string) (saga.Lock, error) {
	ctx, cancel := context.WithTimeout(ctx, l.db.timeout)
	defer cancel()

	now := l.db.now()
	owner := uuid.NewString()
	until := now.Add(l.lease)

	item, err := attributevalue.MarshalMap(lockDynamo{
		PK:         lockPK(correlationID),
		SK:         lockPK(correlationID),
		Owner:      owner,
		LeaseUntil: until.UnixMilli(),
		ExpiresAt:  until.Add(time.Hour).Unix(),
	})
	if err != nil {
		return nil, saga.NewFailedToTranslateDBModelError(correlationID, err)
	}

	cond := expression.Name("PK").AttributeNotExists().
		Or(expression.Name("LeaseUntil").LessThan(expression.Value(now.UnixMilli())))
	expr := exprMustBuild(expression.NewBuilder().WithCondition(cond))

	_, err = l.db.dynamoClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(l.db.tableName),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var condCheckFailedErr *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckFailedErr) {
			return nil, saga.NewAlreadyInProgressError(correlationID)
		}
		return nil, saga.NewTransientError(correlationID, "Failed to acquire saga lock", err)
	}

	return &leaseLock{locker: l, correlationID: correlationID, owner: owner}, nil
}

type leaseLock struct {
	locker        *LeaseLocker
	correlationID string
	owner         string
}

// Release is a no-op if the lease was already taken over.
func (l *leaseLock) Release(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.locker.db.timeout)
	defer cancel()

	expr := exprMustBuild(expression.NewBuilder().
		WithCondition(expression.Name("Owner").Equal(expression.Value(l.owner))))

	_, err := l.locker.db.dynamoClient.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(l.locker.db.tableName),
		Key:                       lockKey(l.correlationID),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var condCheckFailedErr *types.ConditionalCheckFailedException
		if errors.As(err, &condCheckFailedErr) {
			return nil
		}
		return fmt.Errorf("failed to release saga lock %q: %w", l.correlationID, err)
	}
	return nil
}
