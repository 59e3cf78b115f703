package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MessageDeduper records webhook message ids for a short window so Meta's
// at-least-once redelivery cannot replay side effects like add-to-cart.
type MessageDeduper interface {
	// MarkProcessed returns true if the id was newly marked, false if it was
	// already seen inside the TTL window.
	MarkProcessed(ctx context.Context, messageID string, ttl time.Duration) (bool, error)
	Close() error
}

// RedisDeduper shares the seen-set across instances via SETNX with TTL.
type RedisDeduper struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisDeduper creates a Redis-backed deduper and verifies connectivity.
func NewRedisDeduper(addr, password string) (*RedisDeduper, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisDeduper{client: client, keyPrefix: "webhook:seen:"}, nil
}

func (d *RedisDeduper) MarkProcessed(ctx context.Context, messageID string, ttl time.Duration) (bool, error) {
	isNew, err := d.client.SetNX(ctx, d.keyPrefix+messageID, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark message processed: %w", err)
	}
	return isNew, nil
}

func (d *RedisDeduper) Close() error {
	return d.client.Close()
}

// MemoryDeduper is the single-instance fallback, also used in tests.
type MemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	stopCh  chan struct{}
	stopped sync.Once
}

// NewMemoryDeduper creates an in-memory deduper with a background sweep of
// expired entries.
func NewMemoryDeduper() *MemoryDeduper {
	d := &MemoryDeduper{
		seen:   make(map[string]time.Time),
		stopCh: make(chan struct{}),
	}
	go d.cleanupLoop()
	return d
}

func (d *MemoryDeduper) MarkProcessed(_ context.Context, messageID string, ttl time.Duration) (bool, error) {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if expiresAt, exists := d.seen[messageID]; exists && now.Before(expiresAt) {
		return false, nil
	}
	d.seen[messageID] = now.Add(ttl)
	return true, nil
}

func (d *MemoryDeduper) Close() error {
	d.stopped.Do(func() { close(d.stopCh) })
	return nil
}

func (d *MemoryDeduper) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			now := time.Now()
			d.mu.Lock()
			for id, expiresAt := range d.seen {
				if now.After(expiresAt) {
					delete(d.seen, id)
				}
			}
			d.mu.Unlock()
		}
	}
}
