package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

type dynamoItem struct {
	TenantID  string `dynamodbav:"tenant_id"`
	Version   int64  `dynamodbav:"version"`
	Document  string `dynamodbav:"document"`
	UpdatedAt string `dynamodbav:"updated_at"`
}

// DynamoStore keeps one item per tenant, keyed by tenant_id. Versioned writes
// use a condition expression on the version attribute.
type DynamoStore struct {
	client DynamoAPI
	table  string
}

// NewDynamoStore creates a DynamoDB backed Store
func NewDynamoStore(client DynamoAPI, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

func (s *DynamoStore) Get(ctx context.Context, tenantID string) (*OnboardingState, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            map[string]types.AttributeValue{"tenant_id": &types.AttributeValueMemberS{Value: tenantID}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, storageError("load onboarding state from dynamodb", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrStateNotFound
	}

	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, storageError("decode dynamodb item", err)
	}
	var state OnboardingState
	if err := json.Unmarshal([]byte(item.Document), &state); err != nil {
		return nil, storageError("decode onboarding state", err)
	}
	return &state, nil
}

func (s *DynamoStore) Put(ctx context.Context, state *OnboardingState, expectedVersion int64) error {
	doc, err := json.Marshal(state)
	if err != nil {
		return storageError("encode onboarding state", err)
	}
	av, err := attributevalue.MarshalMap(dynamoItem{
		TenantID:  state.TenantID,
		Version:   state.Version,
		Document:  string(doc),
		UpdatedAt: state.UpdatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return storageError("encode dynamodb item", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	}
	if expectedVersion != AnyVersion {
		input.ConditionExpression = aws.String("version = :expected")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(expectedVersion, 10)},
		}
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrConflict
		}
		return storageError("save onboarding state to dynamodb", err)
	}
	return nil
}
