// Package store defines the result store port and an in-memory backend.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/DeafMist/pagemap-facets/internal/models"
)

var (
	// ErrDuplicateItem is returned by Insert when the URL is already stored.
	ErrDuplicateItem = errors.New("item already stored")
	// ErrNotFound is returned by Update when the URL is unknown.
	ErrNotFound = errors.New("item not found")
)

// UpdateFunc mutates an item in place. Returning an error discards the change.
type UpdateFunc func(item *models.Item) error

// Predicate selects items during a filtered scan.
type Predicate func(item models.Item) bool

// Store is a collection of items keyed by URL. Updates to the same key are
// serialized by the implementation.
type Store interface {
	Clear(ctx context.Context) error
	Insert(ctx context.Context, item models.Item) error
	Update(ctx context.Context, url string, fn UpdateFunc) error
	Filter(ctx context.Context, pred Predicate) ([]models.Item, error)
	All(ctx context.Context) ([]models.Item, error)
}

// Purger is implemented by persistent backends that support retention.
type Purger interface {
	DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
}

// Pinger is implemented by backends with a reachable server.
type Pinger interface {
	Ping(ctx context.Context) error
}
