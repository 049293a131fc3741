package processing

import "github.com/DeafMist/pagemap-facets/internal/models"

// SelectVariant returns the variant with the most fields. The first of several
// equally rich variants wins. An empty input yields an empty variant.
func SelectVariant(variants []models.Variant) models.Variant {
	best := models.Variant{}
	bestSize := -1
	for _, v := range variants {
		if size := len(v); size > bestSize {
			best = v
			bestSize = size
		}
	}
	if best == nil {
		return models.Variant{}
	}
	return best
}
