package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// EnsureTable creates the single table and its index when it is missing.
// Deployed tables are provisioned outside the service; this is for DynamoDB
// local and tests. TTL on ExpiresAt has to be turned on separately.
func EnsureTable(ctx context.Context, client *dynamodb.Client, tableName string) error {
	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("failed to describe table %q: %w", tableName, err)
	}

	_, err = client.CreateTable(ctx, tableDefinition(tableName))
	if err != nil {
		return fmt.Errorf("failed to create table %q: %w", tableName, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	err = waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)}, 30*time.Second)
	if err != nil {
		return fmt.Errorf("table %q never became active: %w", tableName, err)
	}

	return nil
}

func keyElement(name string, keyType types.KeyType) types.KeySchemaElement {
	return types.KeySchemaElement{
		AttributeName: aws.String(name),
		KeyType:       keyType,
	}
}

func stringAttribute(name string) types.AttributeDefinition {
	return types.AttributeDefinition{
		AttributeName: aws.String(name),
		AttributeType: types.ScalarAttributeTypeS,
	}
}

func tableDefinition(tableName string) *dynamodb.CreateTableInput {
	return &dynamodb.CreateTableInput{
		TableName:   aws.String(tableName),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			stringAttribute("PK"),
			stringAttribute("SK"),
			stringAttribute("GSI1PK"),
			stringAttribute("GSI1SK"),
		},
		KeySchema: []types.KeySchemaElement{
			keyElement("PK", types.KeyTypeHash),
			keyElement("SK", types.KeyTypeRange),
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String(gsi1),
				KeySchema: []types.KeySchemaElement{
					keyElement("GSI1PK", types.KeyTypeHash),
					keyElement("GSI1SK", types.KeyTypeRange),
				},
				Projection: &types.Projection{
					ProjectionType: types.ProjectionTypeAll,
				},
			},
		},
	}
}
