package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kampus-erp/kampus/internal/provider"
	"github.com/kampus-erp/kampus/internal/shared"
)

// Vault persists the provider tokens bound to one browser session.
type Vault interface {
	// Load returns empty tokens when nothing is stored.
	Load(ctx context.Context) (provider.Tokens, error)
	Save(ctx context.Context, tokens provider.Tokens) error
	Clear(ctx context.Context) error
}

// RedisVault stores tokens next to the cookie session in redis.
type RedisVault struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisVault returns the vault of cookie session sessionID.
func NewRedisVault(client *redis.Client, sessionID string, ttl time.Duration) *RedisVault {
	return &RedisVault{client: client, key: "session:" + sessionID + ":tokens", ttl: ttl}
}

// Load implements Vault. An undecodable payload is reported as corruption.
func (v *RedisVault) Load(ctx context.Context) (provider.Tokens, error) {
	raw, err := v.client.Get(ctx, v.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return provider.Tokens{}, nil
		}
		return provider.Tokens{}, fmt.Errorf("session vault: load: %w: %w", shared.ErrTransient, err)
	}
	var tokens provider.Tokens
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return provider.Tokens{}, fmt.Errorf("session vault: decode: %w: %w", shared.ErrAuthCorruption, err)
	}
	return tokens, nil
}

// Save implements Vault.
func (v *RedisVault) Save(ctx context.Context, tokens provider.Tokens) error {
	raw, err := json.Marshal(tokens)
	if err != nil {
		return err
	}
	return v.client.Set(ctx, v.key, raw, v.ttl).Err()
}

// Clear implements Vault.
func (v *RedisVault) Clear(ctx context.Context) error {
	if err := v.client.Del(ctx, v.key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}
