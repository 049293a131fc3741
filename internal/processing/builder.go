package processing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/DeafMist/pagemap-facets/internal/models"
	"github.com/DeafMist/pagemap-facets/internal/store"
)

const generatedTitleWords = 10

// Builder turns raw results into stored items with typed properties.
type Builder struct {
	profile models.Profile
	refiner *Refiner
	store   store.Store
	log     *slog.Logger
}

// NewBuilder creates a builder writing into st.
func NewBuilder(profile models.Profile, refiner *Refiner, st store.Store, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Builder{profile: profile, refiner: refiner, store: st, log: logger}
}

// NewItem builds the basic item stored before any topic is extracted.
func NewItem(result models.RawResult) models.Item {
	description := CleanSnippet(result.Snippet)
	title := strings.TrimSpace(result.Title)
	if title == "" {
		title = GenerateTitleFromText(description, generatedTitleWords)
	}
	return models.Item{
		URL:         result.Link,
		Title:       title,
		Description: description,
		Properties:  []models.Property{},
		TopicData:   []models.TopicData{},
		StoredAt:    time.Now().UTC(),
	}
}

// Extract picks the richest variant of topic and refines every configured term
// present in it. ok is false when the result carries no data for topic.
// Terms whose value cannot be refined are left out.
func (b *Builder) Extract(result models.RawResult, topic string) (data models.TopicData, props []models.Property, ok bool) {
	variants, ok := result.Pagemap[topic]
	if !ok {
		return nil, nil, false
	}
	variant := SelectVariant(variants)
	data = models.TopicData{topic: variant}

	cfg, known := b.profile.Topic(topic)
	if !known {
		b.log.Warn("topic not configured", slog.String("topic", topic), slog.String("url", result.Link))
		return data, nil, true
	}

	for _, term := range cfg.Entries() {
		raw, present := variant[term.Name]
		if !present || raw == nil {
			continue
		}
		unit := b.profile.Unit(term.Name)
		value, err := b.refiner.Refine(raw, term.Type, unit)
		if err != nil {
			b.log.Warn("drop property",
				slog.String("url", result.Link),
				slog.String("topic", topic),
				slog.String("term", term.Name),
				slog.Any("err", err),
			)
			continue
		}
		props = append(props, models.Property{
			Domain: topic,
			Range:  term.Type,
			Name:   term.Name,
			Label:  term.Label,
			Value:  value,
			Unit:   unit,
		})
	}
	return data, props, true
}

// StoreResult inserts the basic item and then applies one isolated update per
// topic. A failing topic is logged and the remaining topics still run.
func (b *Builder) StoreResult(ctx context.Context, result models.RawResult, topics []string) error {
	if strings.TrimSpace(result.Link) == "" {
		return errors.New("result has no link")
	}

	if err := b.store.Insert(ctx, NewItem(result)); err != nil {
		if !errors.Is(err, store.ErrDuplicateItem) {
			return fmt.Errorf("insert item: %w", err)
		}
		b.log.Debug("duplicate item", slog.String("url", result.Link))
	}

	for _, topic := range topics {
		data, props, ok := b.Extract(result, topic)
		if !ok {
			continue
		}
		err := b.store.Update(ctx, result.Link, func(item *models.Item) error {
			item.TopicData = append(item.TopicData, data)
			item.Properties = append(item.Properties, props...)
			return nil
		})
		if err != nil {
			b.log.Warn("store topic failed",
				slog.String("url", result.Link),
				slog.String("topic", topic),
				slog.Any("err", err),
			)
		}
	}
	return nil
}
