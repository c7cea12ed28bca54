// Package storage persists client-side state snapshots (cart, wishlist) behind
// a swappable backend.
package storage

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jafarshop/storefront/internal/config"
)

// Snapshot keys
const (
	KeyCart     = "cart"
	KeyWishlist = "wishlist"
)

// ErrNoSnapshot is returned by a Backend when nothing was stored under a key
var ErrNoSnapshot = stderrors.New("no snapshot stored")

// Backend stores opaque blobs by key
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// Repository loads and saves one typed state value
type Repository[T any] interface {
	Load(ctx context.Context) (T, error)
	Save(ctx context.Context, state T) error
}

// JSONRepository serializes T as JSON under a single backend key
type JSONRepository[T any] struct {
	backend Backend
	key     string
	logger  *zap.Logger
}

// NewJSONRepository creates a repository bound to key
func NewJSONRepository[T any](backend Backend, key string, logger *zap.Logger) *JSONRepository[T] {
	return &JSONRepository[T]{
		backend: backend,
		key:     key,
		logger:  logger,
	}
}

// Load returns the stored state, or the zero value when nothing was stored or
// the stored blob is corrupt.
func (r *JSONRepository[T]) Load(ctx context.Context) (T, error) {
	var state T

	data, err := r.backend.Get(ctx, r.key)
	if stderrors.Is(err, ErrNoSnapshot) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("failed to load %s snapshot: %w", r.key, err)
	}

	if err := json.Unmarshal(data, &state); err != nil {
		r.logger.Warn("Discarding corrupt snapshot",
			zap.String("key", r.key),
			zap.Error(err),
		)
		var zero T
		return zero, nil
	}

	return state, nil
}

// Save writes the state
func (r *JSONRepository[T]) Save(ctx context.Context, state T) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal %s snapshot: %w", r.key, err)
	}
	if err := r.backend.Put(ctx, r.key, data); err != nil {
		return fmt.Errorf("failed to save %s snapshot: %w", r.key, err)
	}
	return nil
}

// NewBackend builds the backend selected by configuration. The returned close
// function releases connections and is never nil.
func NewBackend(cfg *config.Config, logger *zap.Logger) (Backend, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Storage.Driver {
	case config.StorageMemory:
		return NewMemoryBackend(), noop, nil
	case config.StorageFile:
		b, err := NewFileBackend(cfg.Storage.Dir, logger)
		if err != nil {
			return nil, noop, err
		}
		return b, noop, nil
	case config.StorageRedis:
		b := NewRedisBackend(cfg.Redis, "storefront:", logger)
		return b, b.Close, nil
	case config.StoragePostgres:
		db, err := NewConnection(cfg.Database)
		if err != nil {
			return nil, noop, err
		}
		b := NewPostgresBackend(db, logger)
		if err := b.EnsureSchema(context.Background()); err != nil {
			db.Close()
			return nil, noop, err
		}
		return b, db.Close, nil
	default:
		return nil, noop, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}
