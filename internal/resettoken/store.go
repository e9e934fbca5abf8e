// Package resettoken keeps single-use password reset tokens in Redis.
package resettoken

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL = time.Hour
	keyPrefix  = "vibes:reset"
)

var ErrInvalidToken = errors.New("reset token is invalid or expired")

type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Store{client: client, ttl: ttl}
}

func key(token string) string {
	return keyPrefix + ":" + token
}

// Issue creates a token for the account that expires after the store TTL.
func (s *Store) Issue(ctx context.Context, accountId int) (string, error) {
	token := uuid.NewString()
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.client.Set(ctx, key(token), accountId, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store reset token: %w", err)
	}

	return token, nil
}

// Consume resolves the token to its account and invalidates it.
func (s *Store) Consume(ctx context.Context, token string) (int, error) {
	if token == "" {
		return 0, ErrInvalidToken
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	val, err := s.client.GetDel(ctx, key(token)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrInvalidToken
	}
	if err != nil {
		return 0, fmt.Errorf("consume reset token: %w", err)
	}

	accountId, err := strconv.Atoi(val)
	if err != nil {
		return 0, ErrInvalidToken
	}

	return accountId, nil
}
