// Package idempotency remembers which payment a client retry key produced.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ledger:idempotency:"

// Store claims idempotency keys for payment ids.
type Store interface {
	// Claim binds key to paymentID unless the key is already bound. It returns
	// the id the key is bound to and whether this call made the binding.
	Claim(ctx context.Context, key, paymentID string) (owner string, claimed bool, err error)

	// Release drops a binding whose payment was never recorded.
	Release(ctx context.Context, key string) error
}

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Claim(ctx context.Context, key, paymentID string) (string, bool, error) {
	claimed, err := s.client.SetNX(ctx, keyPrefix+key, paymentID, s.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("claim idempotency key: %w", err)
	}
	if claimed {
		return paymentID, true, nil
	}

	owner, err := s.client.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		return s.Claim(ctx, key, paymentID)
	}
	if err != nil {
		return "", false, fmt.Errorf("read idempotency key: %w", err)
	}
	return owner, false, nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

type memoryEntry struct {
	paymentID string
	expiresAt time.Time
}

// MemoryStore is a process-local Store for tests and single-node runs.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, entries: map[string]memoryEntry{}}
}

func (s *MemoryStore) Claim(ctx context.Context, key, paymentID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[key]; ok && (s.ttl <= 0 || now.Before(e.expiresAt)) {
		return e.paymentID, false, nil
	}
	s.entries[key] = memoryEntry{paymentID: paymentID, expiresAt: now.Add(s.ttl)}
	return paymentID, true, nil
}

func (s *MemoryStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
