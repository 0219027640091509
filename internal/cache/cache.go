// Package cache stores decoded pages of a document in Redis, keyed by the
// document's content hash and the decode parameters.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Page is one cached page with the payloads in reading order.
type Page struct {
	Number int      `json:"page"`
	Codes  []string `json:"codes"`
}

// Params are the decode settings that change the output for a document.
type Params struct {
	DPI        float64
	BlockSize  int
	Offset     float64
	MaxSymbols int
	Backend    string
}

// Cache is the lookup surface the pipeline needs.
type Cache interface {
	Get(ctx context.Context, key string) ([]Page, bool, error)
	Put(ctx context.Context, key string, pages []Page) error
}

// Key hashes the file content together with params.
func Key(path string, p Params) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash input: %w", err)
	}
	fmt.Fprintf(h, "|dpi=%g|block=%d|c=%g|max=%d|backend=%s", p.DPI, p.BlockSize, p.Offset, p.MaxSymbols, p.Backend)
	return "dmscan:doc:" + hex.EncodeToString(h.Sum(nil)), nil
}

// Redis is a Cache backed by a Redis server.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects and pings. A zero ttl keeps entries forever.
func NewRedis(ctx context.Context, redisURL string, ttl time.Duration) (*Redis, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opt)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisFromClient(c, ttl), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(c *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: c, ttl: ttl}
}

func (r *Redis) Close() error { return r.client.Close() }

// Get returns the cached pages. A miss is (nil, false, nil).
func (r *Redis) Get(ctx context.Context, key string) ([]Page, bool, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var pages []Page
	if err := json.Unmarshal(raw, &pages); err != nil {
		return nil, false, fmt.Errorf("decode cached pages: %w", err)
	}
	return pages, true, nil
}

// Put stores pages under key.
func (r *Redis) Put(ctx context.Context, key string, pages []Page) error {
	raw, err := json.Marshal(pages)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, raw, r.ttl).Err()
}
