package processing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/pagemap-facets/internal/models"
	"github.com/DeafMist/pagemap-facets/internal/processing"
	"github.com/DeafMist/pagemap-facets/internal/store"
)

// failingStore fails the update with the given ordinal (1-based).
type failingStore struct {
	*store.Memory
	failOn  int
	updates int
}

func (s *failingStore) Update(ctx context.Context, url string, fn store.UpdateFunc) error {
	s.updates++
	if s.updates == s.failOn {
		return errors.New("disk full")
	}
	return s.Memory.Update(ctx, url, fn)
}

func bookProfile() models.Profile {
	return models.Profile{
		Topics: []models.Topic{
			{Name: "Book", Terms: []string{"author"}, Labels: []string{"Author"}, Types: []string{"text"}},
		},
		Units: map[string]string{},
	}
}

func recipeProfile() models.Profile {
	return models.Profile{
		Topics: []models.Topic{
			{
				Name:   "Recipe",
				Terms:  []string{"name", "cooktime", "recipeyield", "calories"},
				Labels: []string{"Name", "Cook time", "Yield", "Calories"},
				Types:  []string{"text", "duration", "numeric", "numeric"},
			},
			{Name: "Book", Terms: []string{"author"}, Labels: []string{"Author"}, Types: []string{"text"}},
		},
		Units: map[string]string{"cooktime": "minutes", "calories": "kcal"},
	}
}

func newRefiner() *processing.Refiner {
	return processing.NewRefiner(&stubConverter{err: errors.New("unsupported")}, stubDurations{}, nil)
}

func TestStoreResultRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	b := processing.NewBuilder(bookProfile(), newRefiner(), st, nil)

	result := models.RawResult{
		Link: "u1",
		Pagemap: map[string][]models.Variant{
			"Book": {{"name": "A"}, {"name": "A", "author": "X"}},
		},
	}
	require.NoError(t, b.StoreResult(ctx, result, []string{"Book"}))

	items, err := st.All(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, []models.Property{
		{Domain: "Book", Range: "text", Name: "author", Label: "Author", Value: "X"},
	}, items[0].Properties)
	require.Equal(t, []models.TopicData{{"Book": {"name": "A", "author": "X"}}}, items[0].TopicData)
}

func TestStoreResultRefinesTypedTerms(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	refiner := processing.NewRefiner(&stubConverter{err: errors.New("unsupported")}, stubDurations{parsed: 45 * time.Minute}, nil)
	b := processing.NewBuilder(recipeProfile(), refiner, st, nil)

	result := models.RawResult{
		Link:    "https://example.com/cheesecake",
		Title:   "Cheesecake - Blog",
		Snippet: "Rich &amp; creamy",
		Pagemap: map[string][]models.Variant{
			"Recipe": {{
				"name":        "Cheesecake",
				"cooktime":    "PT45M",
				"recipeyield": "1 1/2 cakes",
				"calories":    "a lot",
			}},
		},
	}
	require.NoError(t, b.StoreResult(ctx, result, []string{"Recipe", "Book"}))

	items, err := st.All(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	item := items[0]
	require.Equal(t, "Cheesecake - Blog", item.Title)
	require.Equal(t, "Rich & creamy", item.Description)

	// calories has no number at all and is dropped
	require.Equal(t, []models.Property{
		{Domain: "Recipe", Range: "text", Name: "name", Label: "Name", Value: "Cheesecake"},
		{Domain: "Recipe", Range: "duration", Name: "cooktime", Label: "Cook time", Value: 45.0, Unit: "minutes"},
		{Domain: "Recipe", Range: "numeric", Name: "recipeyield", Label: "Yield", Value: 1.5},
	}, item.Properties)
	require.Len(t, item.TopicData, 1)
}

func TestStoreResultWithoutPagemap(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	b := processing.NewBuilder(recipeProfile(), newRefiner(), st, nil)

	require.NoError(t, b.StoreResult(ctx, models.RawResult{Link: "plain", Snippet: "Just text. More."}, []string{"Recipe"}))

	items, err := st.All(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Empty(t, items[0].Properties)
	require.False(t, items[0].HasStructuredData())
	require.Equal(t, "Just text", items[0].Title)
}

func TestStoreResultUnknownTopicRecordsDataOnly(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	b := processing.NewBuilder(bookProfile(), newRefiner(), st, nil)

	result := models.RawResult{
		Link:    "u1",
		Pagemap: map[string][]models.Variant{"Event": {{"startdate": "2024-01-01"}}},
	}
	require.NoError(t, b.StoreResult(ctx, result, []string{"Event"}))

	items, err := st.All(ctx)
	require.NoError(t, err)
	require.Empty(t, items[0].Properties)
	require.True(t, items[0].HasStructuredData())
}

func TestStoreResultIsolatesTopicFailures(t *testing.T) {
	ctx := context.Background()
	st := &failingStore{Memory: store.NewMemory(), failOn: 1}
	b := processing.NewBuilder(recipeProfile(), newRefiner(), st, nil)

	result := models.RawResult{
		Link: "u1",
		Pagemap: map[string][]models.Variant{
			"Recipe": {{"name": "Pie"}},
			"Book":   {{"author": "X"}},
		},
	}
	require.NoError(t, b.StoreResult(ctx, result, []string{"Recipe", "Book"}))

	items, err := st.All(ctx)
	require.NoError(t, err)
	require.Equal(t, []models.Property{
		{Domain: "Book", Range: "text", Name: "author", Label: "Author", Value: "X"},
	}, items[0].Properties)
	require.Equal(t, []models.TopicData{{"Book": {"author": "X"}}}, items[0].TopicData)
}

func TestStoreResultDuplicateLinkAppends(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	b := processing.NewBuilder(bookProfile(), newRefiner(), st, nil)

	result := models.RawResult{Link: "u1", Title: "one", Pagemap: map[string][]models.Variant{"Book": {{"author": "X"}}}}
	require.NoError(t, b.StoreResult(ctx, result, []string{"Book"}))
	result.Title = "two"
	require.NoError(t, b.StoreResult(ctx, result, []string{"Book"}))

	items, err := st.All(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "one", items[0].Title)
	require.Len(t, items[0].Properties, 2)
}

func TestStoreResultRequiresLink(t *testing.T) {
	b := processing.NewBuilder(bookProfile(), newRefiner(), store.NewMemory(), nil)
	require.Error(t, b.StoreResult(context.Background(), models.RawResult{Title: "no link"}, []string{"Book"}))
}

func TestExtractSkipsNilValues(t *testing.T) {
	b := processing.NewBuilder(bookProfile(), newRefiner(), store.NewMemory(), nil)

	data, props, ok := b.Extract(models.RawResult{
		Link:    "u1",
		Pagemap: map[string][]models.Variant{"Book": {{"author": nil, "name": "A"}}},
	}, "Book")
	require.True(t, ok)
	require.Empty(t, props)
	require.Contains(t, data, "Book")

	_, _, ok = b.Extract(models.RawResult{Link: "u1"}, "Book")
	require.False(t, ok)
}
