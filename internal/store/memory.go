package store

import (
	"context"
	"sync"
	"time"

	"github.com/DeafMist/pagemap-facets/internal/models"
)

// Memory keeps items in insertion order behind a single mutex.
type Memory struct {
	mu    sync.RWMutex
	index map[string]int
	items []models.Item
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{index: make(map[string]int)}
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = make(map[string]int)
	m.items = nil
	return nil
}

func (m *Memory) Insert(_ context.Context, item models.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.index[item.URL]; ok {
		return ErrDuplicateItem
	}
	if item.StoredAt.IsZero() {
		item.StoredAt = time.Now().UTC()
	}
	m.index[item.URL] = len(m.items)
	m.items = append(m.items, cloneItem(item))
	return nil
}

func (m *Memory) Update(_ context.Context, url string, fn UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.index[url]
	if !ok {
		return ErrNotFound
	}
	draft := cloneItem(m.items[pos])
	if err := fn(&draft); err != nil {
		return err
	}
	draft.URL = url
	m.items[pos] = draft
	return nil
}

func (m *Memory) Filter(_ context.Context, pred Predicate) ([]models.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Item, 0, len(m.items))
	for _, item := range m.items {
		if pred(item) {
			out = append(out, cloneItem(item))
		}
	}
	return out, nil
}

func (m *Memory) All(ctx context.Context) ([]models.Item, error) {
	return m.Filter(ctx, func(models.Item) bool { return true })
}

// DeleteOlderThan drops items stored before now-maxAge.
func (m *Memory) DeleteOlderThan(_ context.Context, maxAge time.Duration, _ int) (int64, error) {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.items[:0]
	var deleted int64
	for _, item := range m.items {
		if !item.StoredAt.After(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, item)
	}
	m.items = kept
	m.index = make(map[string]int, len(kept))
	for i, item := range kept {
		m.index[item.URL] = i
	}
	return deleted, nil
}

// cloneItem copies the slices so callers never alias stored state.
func cloneItem(item models.Item) models.Item {
	item.Properties = append([]models.Property(nil), item.Properties...)
	item.TopicData = append([]models.TopicData(nil), item.TopicData...)
	return item
}
