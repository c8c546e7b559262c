// Package modelstate keeps the model selected through the set-model API.
package modelstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opensuperagent/superagent/internal/config"
)

// RedisKey is where the Redis store keeps the selection.
const RedisKey = "superagent:model"

// Selection is a selected model.
type Selection struct {
	API       string    `json:"api"`
	Model     string    `json:"model"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists the current selection.
type Store interface {
	// Get returns the selection and false when nothing was selected yet.
	Get(ctx context.Context) (Selection, bool, error)
	Set(ctx context.Context, s Selection) error
	Close() error
}

// New returns the store configured by cfg.
func New(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.ModelStore {
	case "", config.ModelStoreMemory:
		return &Memory{}, nil
	case config.ModelStoreRedis:
		return NewRedis(ctx, cfg.RedisURL)
	default:
		return nil, fmt.Errorf("unknown model store %q", cfg.ModelStore)
	}
}

// Memory is an in-process store.
type Memory struct {
	mu  sync.RWMutex
	sel *Selection
}

// Get implements Store.
func (m *Memory) Get(context.Context) (Selection, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.sel == nil {
		return Selection{}, false, nil
	}
	return *m.sel, true, nil
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, s Selection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sel = &s
	return nil
}

// Close implements Store.
func (m *Memory) Close() error { return nil }

// Redis shares the selection between server replicas.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to url and pings the server.
func NewRedis(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Redis{client: client}, nil
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context) (Selection, bool, error) {
	data, err := r.client.Get(ctx, RedisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return Selection{}, false, nil
	}
	if err != nil {
		return Selection{}, false, fmt.Errorf("get model selection: %w", err)
	}
	var s Selection
	if err := json.Unmarshal(data, &s); err != nil {
		return Selection{}, false, fmt.Errorf("decode model selection: %w", err)
	}
	return s, true, nil
}

// Set implements Store.
func (r *Redis) Set(ctx context.Context, s Selection) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode model selection: %w", err)
	}
	if err := r.client.Set(ctx, RedisKey, data, 0).Err(); err != nil {
		return fmt.Errorf("set model selection: %w", err)
	}
	return nil
}

// Close implements Store.
func (r *Redis) Close() error {
	return r.client.Close()
}
