package onboarding

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreContract(t *testing.T) {
	factories := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"redis": func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			store := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
			t.Cleanup(func() { store.Close() })
			return store
		},
		"dynamodb": func(t *testing.T) Store {
			return NewDynamoStore(newFakeDynamo(), "onboarding_states")
		},
	}

	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			runStoreContract(t, factory)
		})
	}
}

func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrStateNotFound)
	})

	t.Run("round trip keeps typed step data", func(t *testing.T) {
		store := newStore(t)
		state := contractState("t1", 1)
		state.Steps[0].Completed = true
		state.Steps[0].Data = &SignUpData{BusinessType: "Retail", ContactEmail: "a@b.com"}
		state.Steps[2].Data = &ToolSelectionData{Tools: []string{"crm"}}

		require.NoError(t, store.Put(ctx, state, AnyVersion))

		got, err := store.Get(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Version)
		assert.Equal(t, &SignUpData{BusinessType: "Retail", ContactEmail: "a@b.com"}, got.Steps[0].Data)
		assert.Equal(t, &ToolSelectionData{Tools: []string{"crm"}}, got.Steps[2].Data)
		assert.Nil(t, got.Steps[1].Data)
		assert.True(t, state.UpdatedAt.Equal(got.UpdatedAt))
	})

	t.Run("versioned put", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Put(ctx, contractState("t1", 1), AnyVersion))

		require.NoError(t, store.Put(ctx, contractState("t1", 2), 1))

		err := store.Put(ctx, contractState("t1", 3), 1)
		assert.ErrorIs(t, err, ErrConflict)

		got, err := store.Get(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Version)
	})

	t.Run("versioned put on missing document conflicts", func(t *testing.T) {
		store := newStore(t)
		err := store.Put(ctx, contractState("t2", 2), 1)
		assert.ErrorIs(t, err, ErrConflict)

		_, err = store.Get(ctx, "t2")
		assert.ErrorIs(t, err, ErrStateNotFound)
	})

	t.Run("tenants are isolated", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Put(ctx, contractState("a", 1), AnyVersion))
		require.NoError(t, store.Put(ctx, contractState("b", 7), AnyVersion))

		a, err := store.Get(ctx, "a")
		require.NoError(t, err)
		b, err := store.Get(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, int64(1), a.Version)
		assert.Equal(t, int64(7), b.Version)
	})
}

func contractState(tenantID string, version int64) *OnboardingState {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	svc := &Service{registry: NewRegistry()}
	state := svc.newState(tenantID, now)
	state.Version = version
	return state
}

func TestRedisStore_PrefixAndTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		WithRedisPrefix("test:"),
		WithRedisTTL(time.Hour))
	defer store.Close()

	require.NoError(t, store.Put(context.Background(), contractState("t1", 1), AnyVersion))

	assert.True(t, mr.Exists("test:t1"))
	assert.Equal(t, time.Hour, mr.TTL("test:t1"))
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}))
	defer store.Close()
	mr.Close()

	_, err := store.Get(context.Background(), "t1")
	assert.ErrorIs(t, err, ErrStorage)
}

// fakeDynamo implements the item operations DynamoStore uses, including the
// version condition expression.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func (f *fakeDynamo) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := params.Key["tenant_id"].(*types.AttributeValueMemberS).Value
	return &dynamodb.GetItemOutput{Item: f.items[key]}, nil
}

func (f *fakeDynamo) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := params.Item["tenant_id"].(*types.AttributeValueMemberS).Value

	if aws.ToString(params.ConditionExpression) == "version = :expected" {
		expected := params.ExpressionAttributeValues[":expected"].(*types.AttributeValueMemberN).Value
		current, ok := f.items[key]
		if !ok || current["version"].(*types.AttributeValueMemberN).Value != expected {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
		}
	}

	f.items[key] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}
