// Package redis provides entry and filter caches stored in Redis, so that
// several engine instances can share discovery results.
package redis

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/KilimcininKorOglu/vdx/internal/cache"
	"github.com/KilimcininKorOglu/vdx/internal/data"
	"github.com/KilimcininKorOglu/vdx/internal/directory"
)

// Options configures the Redis connection.
type Options struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379").
	URL string

	// Prefix namespaces every key. Defaults to "vdx".
	Prefix string

	// TTL bounds the lifetime of cached items. Zero never expires.
	TTL time.Duration

	// ConnectTimeout is the maximum time to wait for connection establishment.
	ConnectTimeout time.Duration
}

// Cache implements both cache.EntryCache and cache.FilterCache on one
// Redis connection. Use Entries and Filters to obtain the two views.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New connects to Redis and verifies the connection.
func New(opts Options) (*Cache, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.Prefix == "" {
		opts.Prefix = "vdx"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisOpts.DialTimeout = opts.ConnectTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client, prefix: opts.Prefix, ttl: opts.TTL}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Entries returns the entry cache view.
func (c *Cache) Entries() cache.EntryCache {
	return entryCache{c}
}

// Filters returns the filter cache view.
func (c *Cache) Filters() cache.FilterCache {
	return filterCache{c}
}

func (c *Cache) entryKey(dn string) string {
	return c.prefix + ":entry:" + data.NormalizeDN(dn)
}

func (c *Cache) filterKey(key cache.FilterKey) string {
	sum := sha1.Sum([]byte(key.String()))
	return c.prefix + ":filter:" + key.Mapping + ":" + hex.EncodeToString(sum[:])
}

func (c *Cache) filterIndex(mapping string) string {
	return c.prefix + ":filters:" + mapping
}

type storedEntry struct {
	DN         string              `json:"dn"`
	Names      []string            `json:"names"`
	Attributes map[string][]string `json:"attributes"`
}

type entryCache struct{ c *Cache }

func (e entryCache) Get(ctx context.Context, dn string) (*directory.Entry, bool, error) {
	raw, err := e.c.client.Get(ctx, e.c.entryKey(dn)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get entry %s: %w", dn, err)
	}

	var stored storedEntry
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal entry %s: %w", dn, err)
	}
	entry := directory.NewEntry(stored.DN)
	for _, name := range stored.Names {
		entry.Attributes.Add(name, stored.Attributes[name]...)
	}
	return entry, true, nil
}

func (e entryCache) Put(ctx context.Context, entry *directory.Entry) error {
	raw, err := json.Marshal(storedEntry{
		DN:         entry.DN,
		Names:      entry.AttributeNames(),
		Attributes: entry.Attributes.ToMap(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal entry %s: %w", entry.DN, err)
	}
	if err := e.c.client.Set(ctx, e.c.entryKey(entry.DN), raw, e.c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to put entry %s: %w", entry.DN, err)
	}
	return nil
}

func (e entryCache) Remove(ctx context.Context, dn string) error {
	if err := e.c.client.Del(ctx, e.c.entryKey(dn)).Err(); err != nil {
		return fmt.Errorf("failed to remove entry %s: %w", dn, err)
	}
	return nil
}

func (e entryCache) Purge(ctx context.Context) error {
	return e.c.deletePattern(ctx, e.c.prefix+":entry:*")
}

type filterCache struct{ c *Cache }

func (f filterCache) Get(ctx context.Context, key cache.FilterKey) ([]data.Row, bool, error) {
	raw, err := f.c.client.Get(ctx, f.c.filterKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get filter %s: %w", key, err)
	}

	var stored []map[string]string
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal filter %s: %w", key, err)
	}
	rows := make([]data.Row, len(stored))
	for i, m := range stored {
		rows[i] = data.RowFromMap(m)
	}
	return rows, true, nil
}

func (f filterCache) Put(ctx context.Context, key cache.FilterKey, rows []data.Row) error {
	stored := make([]map[string]string, len(rows))
	for i, r := range rows {
		stored[i] = r.ToMap()
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal filter %s: %w", key, err)
	}

	k := f.c.filterKey(key)
	pipe := f.c.client.TxPipeline()
	pipe.Set(ctx, k, raw, f.c.ttl)
	pipe.SAdd(ctx, f.c.filterIndex(key.Mapping), k)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to put filter %s: %w", key, err)
	}
	return nil
}

func (f filterCache) Invalidate(ctx context.Context, mapping string) error {
	index := f.c.filterIndex(mapping)
	keys, err := f.c.client.SMembers(ctx, index).Result()
	if err != nil {
		return fmt.Errorf("failed to list filters of %s: %w", mapping, err)
	}
	keys = append(keys, index)
	if err := f.c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate filters of %s: %w", mapping, err)
	}
	return nil
}

func (f filterCache) Purge(ctx context.Context) error {
	if err := f.c.deletePattern(ctx, f.c.prefix+":filter:*"); err != nil {
		return err
	}
	return f.c.deletePattern(ctx, f.c.prefix+":filters:*")
}

func (c *Cache) deletePattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan %s: %w", pattern, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", pattern, err)
	}
	return nil
}
