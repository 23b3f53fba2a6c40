// Package blocklist keeps the set of source URLs the bot refuses to play.
package blocklist

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

type Blocklist interface {
	Add(ctx context.Context, source string) error
	Remove(ctx context.Context, source string) error
	Contains(ctx context.Context, source string) (bool, error)
}

// Normalize reduces a source to the form stored in the blocklist: URLs lose
// their scheme, fragment, "www." prefix and trailing slash, and everything is
// lower-cased, so trivially different spellings of one link match.
func Normalize(source string) string {
	source = strings.TrimSpace(source)
	u, err := url.Parse(source)
	if err != nil || u.Host == "" {
		return strings.ToLower(source)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	path := strings.TrimSuffix(u.EscapedPath(), "/")
	key := host + path
	if u.RawQuery != "" {
		key += "?" + u.RawQuery
	}
	return strings.ToLower(key)
}

type RedisBlocklist struct {
	client *redis.Client
	key    string
}

var _ Blocklist = (*RedisBlocklist)(nil)

func NewRedisBlocklist(client *redis.Client, key string) *RedisBlocklist {
	return &RedisBlocklist{client: client, key: key}
}

func (b *RedisBlocklist) Add(ctx context.Context, source string) error {
	if err := b.client.SAdd(ctx, b.key, Normalize(source)).Err(); err != nil {
		return fmt.Errorf("failed to add %s to blocklist: %w", source, err)
	}
	return nil
}

func (b *RedisBlocklist) Remove(ctx context.Context, source string) error {
	if err := b.client.SRem(ctx, b.key, Normalize(source)).Err(); err != nil {
		return fmt.Errorf("failed to remove %s from blocklist: %w", source, err)
	}
	return nil
}

func (b *RedisBlocklist) Contains(ctx context.Context, source string) (bool, error) {
	ok, err := b.client.SIsMember(ctx, b.key, Normalize(source)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blocklist for %s: %w", source, err)
	}
	return ok, nil
}

type MemoryBlocklist struct {
	mu      sync.RWMutex
	entries map[string]struct{}
}

var _ Blocklist = (*MemoryBlocklist)(nil)

func NewMemoryBlocklist() *MemoryBlocklist {
	return &MemoryBlocklist{entries: make(map[string]struct{})}
}

func (b *MemoryBlocklist) Add(_ context.Context, source string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[Normalize(source)] = struct{}{}
	return nil
}

func (b *MemoryBlocklist) Remove(_ context.Context, source string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, Normalize(source))
	return nil
}

func (b *MemoryBlocklist) Contains(_ context.Context, source string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.entries[Normalize(source)]
	return ok, nil
}
