package oauth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrInvalidState = errors.New("invalid or expired oauth state")

// StateStore keeps the state and PKCE verifier of handshakes in flight.
// Each state can be consumed once.
type StateStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStateStore(client *redis.Client, ttl time.Duration) *StateStore {
	return &StateStore{client: client, ttl: ttl}
}

func stateKey(state string) string {
	sum := sha256.Sum256([]byte(state))
	return fmt.Sprintf("oauth_state:%s", hex.EncodeToString(sum[:]))
}

// Save stores the verifier under the state with the store's TTL
func (s *StateStore) Save(ctx context.Context, state, verifier string) error {
	key := stateKey(state)

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, map[string]any{
		"verifier":   verifier,
		"created_at": time.Now().Unix(),
	})
	pipe.Expire(ctx, key, s.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store oauth state: %w", err)
	}

	return nil
}

// Consume returns the verifier saved for state and deletes it in the same transaction
func (s *StateStore) Consume(ctx context.Context, state string) (string, error) {
	if state == "" {
		return "", ErrInvalidState
	}
	key := stateKey(state)

	var get *redis.StringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.HGet(ctx, key, "verifier")
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("failed to consume oauth state: %w", err)
	}

	verifier, err := get.Result()
	if errors.Is(err, redis.Nil) || verifier == "" {
		return "", ErrInvalidState
	}
	if err != nil {
		return "", fmt.Errorf("failed to read oauth state: %w", err)
	}

	return verifier, nil
}
