package dynamo

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

const (
	gsi1 = "GSI1"

	// ttlAttribute holds epoch seconds; the table's TTL setting points at it.
	ttlAttribute = "ExpiresAt"
)

// defaultTimeout bounds a single DynamoDB call when NewDB is given none.
const defaultTimeout = time.Second

type DB struct {
	dynamoClient *dynamodb.Client
	tableName    string
	timeout      time.Duration
	now          func() time.Time
}

// NewDB wraps every table call in timeout. A non-positive timeout falls back
// to one second.
func NewDB(dynamoClient *dynamodb.Client, tableName string, timeout time.Duration) *DB {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &DB{
		dynamoClient: dynamoClient,
		tableName:    tableName,
		timeout:      timeout,
		now:          time.Now,
	}
}

func newEntityVersionConditional(version int) expression.ConditionBuilder {
	return expression.Name("PK").AttributeNotExists().
		And(expression.Value(version).Equal(expression.Value(1)))
}

func existingEntityVersionConditional(version int) expression.ConditionBuilder {
	return expression.Name("PK").AttributeExists().
		And(expression.Name("Version").Equal(expression.Value(version - 1)))
}

func exprMustBuild(builder expression.Builder) expression.Expression {
	expr, err := builder.Build()
	if err != nil {
		panic("failed to build dynamo expression")
	}

	return expr
}
