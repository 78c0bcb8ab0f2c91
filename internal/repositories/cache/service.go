// Package cache is a JSON-over-redis cache with typed helpers for resolved accounts.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	cachekeys "wallettx/internal/utils/cache"

	"github.com/redis/go-redis/v9"
)

type CacheService struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCacheService(client *redis.Client, defaultTTL time.Duration) *CacheService {
	return &CacheService{
		client: client,
		ttl:    defaultTTL,
	}
}

// Set stores value as JSON under key for the default TTL.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return s.client.Set(ctx, key, data, s.ttl).Err()
}

func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get cache value: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return true, nil
}

// ResolvedAccount is the cached answer of the account directory.
type ResolvedAccount struct {
	Identity  string `json:"identity"`
	AccountID string `json:"accountId"`
}

func accountKey(identity string) string {
	return cachekeys.GenerateKey(cachekeys.EntityAccount, cachekeys.KeyIdentity, identity)
}

// Account caching
func (s *CacheService) CacheAccount(ctx context.Context, acct ResolvedAccount) error {
	if acct.Identity == "" || acct.AccountID == "" {
		return errors.New("cannot cache incomplete account")
	}
	return s.Set(ctx, accountKey(acct.Identity), acct)
}

func (s *CacheService) GetAccount(ctx context.Context, identity string) (*ResolvedAccount, bool, error) {
	var acct ResolvedAccount
	found, err := s.Get(ctx, accountKey(identity), &acct)
	if err != nil || !found {
		return nil, false, err
	}
	return &acct, true, nil
}
