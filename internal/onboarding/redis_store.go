package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// RedisStore keeps onboarding documents as JSON strings in Redis. Versioned
// writes run inside WATCH/MULTI so a concurrent writer aborts the transaction.
type RedisStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type RedisOption func(*RedisStore)

// WithRedisPrefix sets the key prefix for onboarding documents.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithRedisTTL sets the expiration of onboarding documents.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// NewRedisStore creates a Redis store from an existing client.
func NewRedisStore(client *backend.Client, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client: client,
		prefix: "onboarding:state:",
		ttl:    0, // No expiration by default
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

func (s *RedisStore) key(tenantID string) string {
	return s.prefix + tenantID
}

func (s *RedisStore) Get(ctx context.Context, tenantID string) (*OnboardingState, error) {
	val, err := s.client.Get(ctx, s.key(tenantID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, ErrStateNotFound
		}
		return nil, storageError("load onboarding state from redis", err)
	}

	var state OnboardingState
	if err := json.Unmarshal(val, &state); err != nil {
		return nil, storageError("decode onboarding state", err)
	}
	return &state, nil
}

func (s *RedisStore) Put(ctx context.Context, state *OnboardingState, expectedVersion int64) error {
	data, err := json.Marshal(state)
	if err != nil {
		return storageError("encode onboarding state", err)
	}
	key := s.key(state.TenantID)

	if expectedVersion == AnyVersion {
		if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
			return storageError("save onboarding state to redis", err)
		}
		return nil
	}

	txf := func(tx *backend.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, backend.Nil) {
			return ErrConflict
		}
		if err != nil {
			return err
		}
		var stored struct {
			Version int64 `json:"version"`
		}
		if err := json.Unmarshal(current, &stored); err != nil {
			return err
		}
		if stored.Version != expectedVersion {
			return ErrConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}

	err = s.client.Watch(ctx, txf, key)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConflict), errors.Is(err, backend.TxFailedErr):
		return ErrConflict
	default:
		return storageError("update onboarding state in redis", err)
	}
}

// Close closes the redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
