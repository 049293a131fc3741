package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/DeafMist/pagemap-facets/internal/facets"
	"github.com/DeafMist/pagemap-facets/internal/models"
	"github.com/DeafMist/pagemap-facets/internal/processing"
	"github.com/DeafMist/pagemap-facets/internal/query"
	"github.com/DeafMist/pagemap-facets/internal/store"
)

// Round summarises one search round.
type Round struct {
	ID          string         `json:"id"`
	Keyword     string         `json:"keyword"`
	Topics      []string       `json:"topics"`
	Items       []models.Item  `json:"items"`
	Facets      []models.Facet `json:"facets"`
	FailedPages []int          `json:"failed_pages,omitempty"`
}

// Runner executes search rounds against a retriever and a store.
type Runner struct {
	retriever Retriever
	builder   *processing.Builder
	store     store.Store
	profile   models.Profile
	pageLimit int
	log       *slog.Logger
}

// NewRunner wires a runner.
func NewRunner(r Retriever, b *processing.Builder, st store.Store, profile models.Profile, pageLimit int, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{
		retriever: r,
		builder:   b,
		store:     st,
		profile:   profile,
		pageLimit: pageLimit,
		log:       logger,
	}
}

// Run parses raw, fetches every page, clears the store and stores the results
// of the pages that succeeded in page order. A query without keyword yields an
// empty round and leaves the store untouched.
func (r *Runner) Run(ctx context.Context, raw string) (*Round, error) {
	round := &Round{ID: uuid.NewString(), Items: []models.Item{}, Facets: []models.Facet{}}
	log := r.log.With(slog.String("round", round.ID))

	q, err := query.Parse(raw, r.profile.TopicNames())
	if err != nil {
		if errors.Is(err, query.ErrMissingKeyword) {
			log.Info("search aborted", slog.Any("err", err))
			return round, nil
		}
		return nil, err
	}
	round.Keyword = q.Keyword
	round.Topics = q.Topics

	batch := FetchAll(ctx, r.retriever, q.Keyword, r.pageLimit)
	for _, f := range batch.Failed {
		round.FailedPages = append(round.FailedPages, f.Page)
		log.Warn("page request failed", slog.Int("page", f.Page), slog.Any("err", f.Err))
	}

	if err := r.store.Clear(ctx); err != nil {
		return nil, fmt.Errorf("clear store: %w", err)
	}

	stored := 0
	for _, page := range batch.Succeeded {
		for _, result := range page.Results {
			if err := r.builder.StoreResult(ctx, result, q.Topics); err != nil {
				log.Warn("store result failed",
					slog.Int("page", page.Page),
					slog.String("url", result.Link),
					slog.Any("err", err),
				)
				continue
			}
			stored++
		}
	}

	items, err := r.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("read store: %w", err)
	}
	round.Items = items
	round.Facets = facets.Build(items)

	log.Info("search round completed",
		slog.String("keyword", q.Keyword),
		slog.Int("pages_ok", len(batch.Succeeded)),
		slog.Int("pages_failed", len(batch.Failed)),
		slog.Int("results", stored),
		slog.Int("facets", len(round.Facets)),
	)
	return round, nil
}
