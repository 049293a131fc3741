// Package redisstore keeps items as JSON strings under a key prefix, with a list
// recording insertion order and a sorted set indexing storage time.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DeafMist/pagemap-facets/internal/models"
	"github.com/DeafMist/pagemap-facets/internal/store"
)

const (
	maxUpdateAttempts = 10
	fetchChunk        = 200
)

// Config holds Redis connection configuration.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Store is a store.Store backed by Redis.
type Store struct {
	client *redis.Client
	prefix string
}

var (
	_ store.Store  = (*Store)(nil)
	_ store.Purger = (*Store)(nil)
	_ store.Pinger = (*Store)(nil)
)

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "facets:"
	}

	return &Store{client: client, prefix: prefix}, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (s *Store) itemKey(url string) string { return s.prefix + "item:" + url }
func (s *Store) orderKey() string          { return s.prefix + "order" }
func (s *Store) storedKey() string         { return s.prefix + "stored" }

// Clear removes every key under the store prefix.
func (s *Store) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis clear: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, item models.Item) error {
	if item.StoredAt.IsZero() {
		item.StoredAt = time.Now().UTC()
	}
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.itemKey(item.URL), data, 0).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return store.ErrDuplicateItem
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, s.orderKey(), item.URL)
		pipe.ZAdd(ctx, s.storedKey(), redis.Z{Score: float64(item.StoredAt.Unix()), Member: item.URL})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis index item: %w", err)
	}
	return nil
}

// Update runs fn inside WATCH/MULTI so concurrent writers to the same item
// retry instead of overwriting each other.
func (s *Store) Update(ctx context.Context, url string, fn store.UpdateFunc) error {
	key := s.itemKey(url)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("redis get: %w", err)
		}

		var item models.Item
		if err := json.Unmarshal(raw, &item); err != nil {
			return fmt.Errorf("decode item: %w", err)
		}
		if err := fn(&item); err != nil {
			return err
		}
		item.URL = url

		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshal item: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update %q: too many conflicts", url)
}

func (s *Store) Filter(ctx context.Context, pred store.Predicate) ([]models.Item, error) {
	urls, err := s.client.LRange(ctx, s.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}

	out := make([]models.Item, 0, len(urls))
	for start := 0; start < len(urls); start += fetchChunk {
		end := min(start+fetchChunk, len(urls))
		keys := make([]string, 0, end-start)
		for _, u := range urls[start:end] {
			keys = append(keys, s.itemKey(u))
		}

		vals, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("redis mget: %w", err)
		}
		for _, v := range vals {
			raw, ok := v.(string)
			if !ok {
				// Purged between LRANGE and MGET.
				continue
			}
			var item models.Item
			if err := json.Unmarshal([]byte(raw), &item); err != nil {
				return nil, fmt.Errorf("decode item: %w", err)
			}
			if pred(item) {
				out = append(out, item)
			}
		}
	}
	return out, nil
}

func (s *Store) All(ctx context.Context) ([]models.Item, error) {
	return s.Filter(ctx, func(models.Item) bool { return true })
}

// DeleteOlderThan removes items whose storage time is before now-maxAge.
func (s *Store) DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}
	cutoff := strconv.FormatInt(time.Now().Add(-maxAge).Unix(), 10)

	var total int64
	for {
		urls, err := s.client.ZRangeByScore(ctx, s.storedKey(), &redis.ZRangeBy{
			Min:   "-inf",
			Max:   cutoff,
			Count: int64(batchSize),
		}).Result()
		if err != nil {
			return total, fmt.Errorf("redis zrangebyscore: %w", err)
		}
		if len(urls) == 0 {
			return total, nil
		}

		_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, u := range urls {
				pipe.Del(ctx, s.itemKey(u))
				pipe.LRem(ctx, s.orderKey(), 0, u)
				pipe.ZRem(ctx, s.storedKey(), u)
			}
			return nil
		})
		if err != nil {
			return total, fmt.Errorf("redis purge: %w", err)
		}
		total += int64(len(urls))
		if len(urls) < batchSize {
			return total, nil
		}
	}
}
