package dynamo

import (
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func lastEvalKeyToCursor(lastEvalKey map[string]types.AttributeValue) (string, error) {
	bytesJSON, err := attributevalue.MarshalMapJSON(lastEvalKey)
	if err != nil {
		return "", fmt.Errorf("failed to encode to JSON: %w", err)
	}

	return base64.StdEncoding.EncodeToString(bytesJSON), nil
}

func cursorToLastEval(cursor string) (map[string]types.AttributeValue, error) {
	bytesJSON, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("failed to b64 decode: %w", err)
	}

	outputJSON, err := attributevalue.UnmarshalMapJSON(bytesJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to json decode: %w", err)
	}

	return outputJSON, nil
}

func startKeyFromCursor(cursor *string) (map[string]types.AttributeValue, error) {
	if cursor == nil {
		return nil, nil
	}
	return cursorToLastEval(*cursor)
}

// nextPageCursor expects a query that fetched limit+1 items. The extra item
// only signals that another page exists, so the cursor points at the last
// item actually returned.
func nextPageCursor(items []map[string]types.AttributeValue, lastEvalKey map[string]types.AttributeValue, limit int32) (*string, bool) {
	hasNextPage := len(items) > int(limit)
	if !hasNextPage || len(lastEvalKey) == 0 {
		return nil, hasNextPage
	}

	lastItemGivenToUser := items[len(items)-2]
	key := map[string]types.AttributeValue{}
	for k := range lastEvalKey {
		key[k] = lastItemGivenToUser[k]
	}

	c, err := lastEvalKeyToCursor(key)
	if err != nil {
		panic(fmt.Sprintf("failed to make cursor from lastEvalKey: %s", err))
	}
	return &c, hasNextPage
}
