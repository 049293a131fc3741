package processing_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/pagemap-facets/internal/models"
	"github.com/DeafMist/pagemap-facets/internal/processing"
)

func TestSelectVariantPicksRichest(t *testing.T) {
	variants := []models.Variant{
		{"name": "A"},
		{"name": "A", "author": "X"},
		{"name": "B"},
	}
	got := processing.SelectVariant(variants)
	require.Equal(t, models.Variant{"name": "A", "author": "X"}, got)

	for _, v := range variants {
		require.GreaterOrEqual(t, len(got), len(v))
	}
}

func TestSelectVariantFirstMaximalWins(t *testing.T) {
	variants := []models.Variant{
		{"name": "first", "x": 1},
		{"name": "second", "y": 2},
	}
	require.Equal(t, "first", processing.SelectVariant(variants)["name"])
}

func TestSelectVariantEmpty(t *testing.T) {
	got := processing.SelectVariant(nil)
	require.NotNil(t, got)
	require.Empty(t, got)

	got = processing.SelectVariant([]models.Variant{nil})
	require.NotNil(t, got)
	require.Empty(t, got)
}
