// Package sqlite persists items in a single SQLite table so that the API,
// worker and retention binaries can share one result store on disk.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/DeafMist/pagemap-facets/internal/models"
	"github.com/DeafMist/pagemap-facets/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS items (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	url         TEXT    NOT NULL UNIQUE,
	title       TEXT    NOT NULL,
	description TEXT    NOT NULL,
	properties  TEXT    NOT NULL,
	topic_data  TEXT    NOT NULL,
	stored_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_items_stored_at ON items(stored_at);
`

// Store is a store.Store backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

var (
	_ store.Store  = (*Store)(nil)
	_ store.Purger = (*Store)(nil)
	_ store.Pinger = (*Store)(nil)
)

// Open opens (creating if needed) the database file at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// Immediate transactions take the write lock up front so concurrent
	// read-modify-write updates queue on busy_timeout instead of failing.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer at a time inside the process; other processes wait on the file lock.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM items`); err != nil {
		return fmt.Errorf("clearing items: %w", err)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, item models.Item) error {
	if item.StoredAt.IsZero() {
		item.StoredAt = time.Now().UTC()
	}
	props, topics, err := encodeCollections(item)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO items (url, title, description, properties, topic_data, stored_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO NOTHING`,
		item.URL, item.Title, item.Description, props, topics, item.StoredAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("inserting item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("inserting item: %w", err)
	}
	if n == 0 {
		return store.ErrDuplicateItem
	}
	return nil
}

func (s *Store) Update(ctx context.Context, url string, fn store.UpdateFunc) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	row := tx.QueryRowContext(ctx, `
		SELECT url, title, description, properties, topic_data, stored_at
		FROM items WHERE url = ?`, url)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}

	if err = fn(&item); err != nil {
		return err
	}

	props, topics, err := encodeCollections(item)
	if err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `
		UPDATE items SET title = ?, description = ?, properties = ?, topic_data = ?
		WHERE url = ?`,
		item.Title, item.Description, props, topics, url,
	); err != nil {
		return fmt.Errorf("updating item: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing update: %w", err)
	}
	return nil
}

func (s *Store) Filter(ctx context.Context, pred store.Predicate) ([]models.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT url, title, description, properties, topic_data, stored_at
		FROM items ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	defer rows.Close()

	out := make([]models.Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		if pred(item) {
			out = append(out, item)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating items: %w", err)
	}
	return out, nil
}

func (s *Store) All(ctx context.Context) ([]models.Item, error) {
	return s.Filter(ctx, func(models.Item) bool { return true })
}

// DeleteOlderThan removes items stored before now-maxAge, batchSize rows at a time.
func (s *Store) DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}
	cutoff := time.Now().Add(-maxAge).UnixNano()

	var total int64
	for {
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM items WHERE seq IN (
				SELECT seq FROM items WHERE stored_at <= ? LIMIT ?
			)`, cutoff, batchSize)
		if err != nil {
			return total, fmt.Errorf("deleting expired items: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("deleting expired items: %w", err)
		}
		total += n
		if n < int64(batchSize) {
			return total, nil
		}
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(sc scanner) (models.Item, error) {
	var (
		item     models.Item
		props    string
		topics   string
		storedAt int64
	)
	if err := sc.Scan(&item.URL, &item.Title, &item.Description, &props, &topics, &storedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Item{}, err
		}
		return models.Item{}, fmt.Errorf("scanning item: %w", err)
	}
	if err := json.Unmarshal([]byte(props), &item.Properties); err != nil {
		return models.Item{}, fmt.Errorf("decoding properties: %w", err)
	}
	if err := json.Unmarshal([]byte(topics), &item.TopicData); err != nil {
		return models.Item{}, fmt.Errorf("decoding topic data: %w", err)
	}
	item.StoredAt = time.Unix(0, storedAt).UTC()
	return item, nil
}

func encodeCollections(item models.Item) (string, string, error) {
	if item.Properties == nil {
		item.Properties = []models.Property{}
	}
	if item.TopicData == nil {
		item.TopicData = []models.TopicData{}
	}
	props, err := json.Marshal(item.Properties)
	if err != nil {
		return "", "", fmt.Errorf("encoding properties: %w", err)
	}
	topics, err := json.Marshal(item.TopicData)
	if err != nil {
		return "", "", fmt.Errorf("encoding topic data: %w", err)
	}
	return string(props), string(topics), nil
}
