// Package facets derives selectable facets from stored items and filters the
// item collection by a facet selection.
package facets

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/DeafMist/pagemap-facets/internal/models"
	"github.com/DeafMist/pagemap-facets/internal/store"
)

// Build projects every property into a facet and keeps the first facet for
// each (domain, name, value).
func Build(items []models.Item) []models.Facet {
	seen := make(map[string]struct{})
	out := make([]models.Facet, 0)
	for _, item := range items {
		for _, p := range item.Properties {
			k := key(p.Domain, p.Name, p.Value)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, models.Facet{
				Domain: p.Domain,
				Name:   p.Name,
				Label:  Label(p.Label, p.Unit),
				Value:  p.Value,
				Type:   p.Range,
			})
		}
	}
	return out
}

// Label renders a facet label, "Weight (g)" or just "Author".
func Label(label, unit string) string {
	if unit == "" {
		return label
	}
	return label + " (" + unit + ")"
}

// Selected returns the facets flagged as selected.
func Selected(all []models.Facet) []models.Facet {
	var out []models.Facet
	for _, f := range all {
		if f.Selected {
			out = append(out, f)
		}
	}
	return out
}

// Toggle flips the selection flag of the facet at i.
func Toggle(all []models.Facet, i int) error {
	if i < 0 || i >= len(all) {
		return fmt.Errorf("facet index %d out of range", i)
	}
	all[i].Selected = !all[i].Selected
	return nil
}

// Matches reports whether item belongs in the view for the given selection.
// Items without structured data always match; otherwise any property equal to
// any selected facet is enough. Values compare by type as well as content, so a
// selected "12" does not match a stored 12; JSON callers must send the value
// with the type it was stored as.
func Matches(item models.Item, selected []models.Facet) bool {
	if !item.HasStructuredData() {
		return true
	}
	if len(selected) == 0 {
		return true
	}
	wanted := make(map[string]struct{}, len(selected))
	for _, f := range selected {
		wanted[key(f.Domain, f.Name, f.Value)] = struct{}{}
	}
	for _, p := range item.Properties {
		if _, ok := wanted[key(p.Domain, p.Name, p.Value)]; ok {
			return true
		}
	}
	return false
}

// ComputeView returns the items visible under the selection. With nothing
// selected the whole store is returned.
func ComputeView(ctx context.Context, st store.Store, selected []models.Facet) ([]models.Item, error) {
	if len(selected) == 0 {
		return st.All(ctx)
	}
	return st.Filter(ctx, func(item models.Item) bool {
		return Matches(item, selected)
	})
}

func key(domain, name string, value any) string {
	return strconv.Quote(domain) + "|" + strconv.Quote(name) + "|" + valueKey(value)
}

// valueKey gives values a comparable form that keeps their type apart, so the
// string "12" and the number 12 are different facet values.
func valueKey(v any) string {
	switch x := v.(type) {
	case nil:
		return "n:"
	case string:
		return "s:" + x
	case float64:
		return "f:" + strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return "b:" + strconv.FormatBool(x)
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return "x:" + fmt.Sprint(x)
		}
		return "j:" + string(data)
	}
}
