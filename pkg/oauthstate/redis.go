package oauthstate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisStore keeps states in Redis so callbacks can land on any instance
// behind the load balancer. Expiry is delegated to Redis TTLs.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func stateKey(state string) string {
	return "oauth:state:" + state
}

func (s *RedisStore) Save(ctx context.Context, state string, payload Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode oauth state: %w", err)
	}
	if err := s.client.Set(ctx, stateKey(state), data, TTL).Err(); err != nil {
		return fmt.Errorf("save oauth state: %w", err)
	}
	return nil
}

func (s *RedisStore) Consume(ctx context.Context, state string) (Payload, error) {
	// GETDEL makes read-and-invalidate a single atomic step.
	data, err := s.client.GetDel(ctx, stateKey(state)).Bytes()
	if err == redis.Nil {
		return Payload{}, ErrStateNotFound
	}
	if err != nil {
		return Payload{}, fmt.Errorf("consume oauth state: %w", err)
	}
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Payload{}, fmt.Errorf("decode oauth state: %w", err)
	}
	return payload, nil
}
