package elasticsearch

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/DeafMist/pagemap-facets/internal/models"
	"github.com/DeafMist/pagemap-facets/internal/store"
)

const (
	scanPageSize      = 500
	maxUpdateAttempts = 5
)

// indexMapping stores properties and topic data verbatim; their values are
// heterogeneous and never queried server-side.
const indexMapping = `{
  "mappings": {
    "properties": {
      "url":         {"type": "keyword"},
      "title":       {"type": "text"},
      "description": {"type": "text"},
      "stored_at":   {"type": "date_nanos"},
      "seq":         {"type": "long"},
      "properties":  {"type": "object", "enabled": false},
      "topic_data":  {"type": "object", "enabled": false}
    }
  }
}`

// Client is a store.Store backed by a single Elasticsearch index.
type Client struct {
	es    *elasticsearch.Client
	index string
	log   *slog.Logger

	seqMu   sync.Mutex
	lastSeq int64
}

var (
	_ store.Store  = (*Client)(nil)
	_ store.Purger = (*Client)(nil)
	_ store.Pinger = (*Client)(nil)
)

// document is the indexed form of an item; seq keeps insertion order.
type document struct {
	models.Item
	Seq int64 `json:"seq"`
}

// New instantiates the Elasticsearch client.
func New(addr, index string, logger *slog.Logger) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{addr},
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{es: es, index: index, log: logger}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}

	return nil
}

// EnsureIndex creates the index with its mapping when it does not exist.
func (c *Client) EnsureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = c.es.Indices.Create(
		c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		// Another process may have won the race.
		if strings.Contains(string(body), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("create index failed: %s", strings.TrimSpace(string(body)))
	}

	c.log.Info("index created", slog.String("index", c.index))
	return nil
}

// Clear removes every document from the index.
func (c *Client) Clear(ctx context.Context) error {
	res, err := c.es.DeleteByQuery(
		[]string{c.index},
		strings.NewReader(`{"query":{"match_all":{}}}`),
		c.es.DeleteByQuery.WithContext(ctx),
		c.es.DeleteByQuery.WithConflicts("proceed"),
		c.es.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("clear index failed: %s", strings.TrimSpace(string(body)))
	}
	return nil
}

// Insert creates the item document. An existing URL yields store.ErrDuplicateItem.
func (c *Client) Insert(ctx context.Context, item models.Item) error {
	if item.StoredAt.IsZero() {
		item.StoredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(document{Item: item, Seq: c.nextSeq()})
	if err != nil {
		return fmt.Errorf("marshal doc: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: DocumentID(item.URL),
		Body:       bytes.NewReader(payload),
		OpType:     "create",
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("index doc: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusConflict {
		return store.ErrDuplicateItem
	}
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index doc failed: %s", strings.TrimSpace(string(body)))
	}

	return nil
}

// Update applies fn with optimistic concurrency control, retrying when a
// concurrent writer bumped the document's sequence number.
func (c *Client) Update(ctx context.Context, url string, fn store.UpdateFunc) error {
	id := DocumentID(url)

	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		doc, seqNo, primaryTerm, err := c.get(ctx, id)
		if err != nil {
			return err
		}

		draft := doc.Item
		if err := fn(&draft); err != nil {
			return err
		}
		draft.URL = url
		doc.Item = draft

		payload, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshal doc: %w", err)
		}

		req := esapi.IndexRequest{
			Index:         c.index,
			DocumentID:    id,
			Body:          bytes.NewReader(payload),
			IfSeqNo:       &seqNo,
			IfPrimaryTerm: &primaryTerm,
			Refresh:       "false",
		}
		res, err := req.Do(ctx, c.es)
		if err != nil {
			return fmt.Errorf("update doc: %w", err)
		}

		if res.StatusCode == http.StatusConflict {
			res.Body.Close()
			c.log.Debug("update conflict, retrying", slog.String("url", url), slog.Int("attempt", attempt))
			continue
		}
		if res.IsError() {
			body, _ := io.ReadAll(res.Body)
			res.Body.Close()
			return fmt.Errorf("update doc failed: %s", strings.TrimSpace(string(body)))
		}
		res.Body.Close()
		return nil
	}

	return fmt.Errorf("update doc %q: too many conflicts", url)
}

func (c *Client) get(ctx context.Context, id string) (document, int, int, error) {
	req := esapi.GetRequest{Index: c.index, DocumentID: id}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return document{}, 0, 0, fmt.Errorf("get doc: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return document{}, 0, 0, store.ErrNotFound
	}
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return document{}, 0, 0, fmt.Errorf("get doc failed: %s", strings.TrimSpace(string(body)))
	}

	var parsed struct {
		SeqNo       int      `json:"_seq_no"`
		PrimaryTerm int      `json:"_primary_term"`
		Source      document `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return document{}, 0, 0, fmt.Errorf("decode get response: %w", err)
	}
	return parsed.Source, parsed.SeqNo, parsed.PrimaryTerm, nil
}

// Filter scans the index in insertion order and keeps items accepted by pred.
func (c *Client) Filter(ctx context.Context, pred store.Predicate) ([]models.Item, error) {
	if err := c.refresh(ctx); err != nil {
		return nil, err
	}

	out := make([]models.Item, 0)
	var after []json.Number
	for {
		hits, err := c.scanPage(ctx, after)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			if pred(h.Source.Item) {
				out = append(out, h.Source.Item)
			}
		}
		if len(hits) < scanPageSize {
			return out, nil
		}
		after = hits[len(hits)-1].Sort
	}
}

// All returns every stored item in insertion order.
func (c *Client) All(ctx context.Context) ([]models.Item, error) {
	return c.Filter(ctx, func(models.Item) bool { return true })
}

type hit struct {
	Source document      `json:"_source"`
	Sort   []json.Number `json:"sort"`
}

func (c *Client) scanPage(ctx context.Context, after []json.Number) ([]hit, error) {
	body := map[string]any{
		"size":  scanPageSize,
		"query": map[string]any{"match_all": map[string]any{}},
		"sort":  []map[string]any{{"seq": map[string]any{"order": "asc"}}},
	}
	if len(after) > 0 {
		body["search_after"] = after
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Hits struct {
			Hits []hit `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return parsed.Hits.Hits, nil
}

func (c *Client) refresh(ctx context.Context) error {
	res, err := c.es.Indices.Refresh(
		c.es.Indices.Refresh.WithContext(ctx),
		c.es.Indices.Refresh.WithIndex(c.index),
	)
	if err != nil {
		return fmt.Errorf("refresh index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("refresh failed: %s", strings.TrimSpace(string(data)))
	}
	return nil
}

// DeleteOlderThan removes documents older than maxAge using batched delete-by-query.
// It loops until a batch returns fewer deleted documents than the requested batchSize.
func (c *Client) DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	cutoff := time.Now().Add(-maxAge).UTC().Format(time.RFC3339Nano)
	totalDeleted := int64(0)

	for {
		body := map[string]any{
			"max_docs": batchSize,
			"query": map[string]any{
				"range": map[string]any{
					"stored_at": map[string]any{
						"lte": cutoff,
					},
				},
			},
		}

		payload, err := json.Marshal(body)
		if err != nil {
			return totalDeleted, fmt.Errorf("marshal delete body: %w", err)
		}

		res, err := c.es.DeleteByQuery(
			[]string{c.index},
			bytes.NewReader(payload),
			c.es.DeleteByQuery.WithContext(ctx),
			c.es.DeleteByQuery.WithWaitForCompletion(true),
			c.es.DeleteByQuery.WithConflicts("proceed"),
			c.es.DeleteByQuery.WithScrollSize(batchSize),
			c.es.DeleteByQuery.WithRefresh(true),
		)
		if err != nil {
			return totalDeleted, fmt.Errorf("delete by query: %w", err)
		}

		if res.IsError() {
			data, _ := io.ReadAll(res.Body)
			res.Body.Close()
			return totalDeleted, fmt.Errorf("delete by query failed: %s", strings.TrimSpace(string(data)))
		}

		var parsed struct {
			Deleted int64 `json:"deleted"`
		}
		if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
			res.Body.Close()
			return totalDeleted, fmt.Errorf("decode delete response: %w", err)
		}
		res.Body.Close()

		totalDeleted += parsed.Deleted

		if parsed.Deleted < int64(batchSize) {
			break
		}
	}

	return totalDeleted, nil
}

// DocumentID derives a stable document id from a URL. Raw URLs can exceed
// the 512 byte id limit.
func DocumentID(url string) string {
	sum := sha1.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// nextSeq returns a strictly increasing, time-based sequence number.
func (c *Client) nextSeq() int64 {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()
	seq := time.Now().UnixNano()
	if seq <= c.lastSeq {
		seq = c.lastSeq + 1
	}
	c.lastSeq = seq
	return seq
}
