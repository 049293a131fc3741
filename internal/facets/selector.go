package facets

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/DeafMist/pagemap-facets/internal/models"
)

// Selector names facets as "domain:name:value". The value is compared with
// the facet value's printed form, so it may itself contain colons.
type Selector struct {
	Domain string
	Name   string
	Value  string
}

// ParseSelector reads a "domain:name:value" selector.
func ParseSelector(raw string) (Selector, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return Selector{}, fmt.Errorf("facet selector %q: want domain:name:value", raw)
	}
	return Selector{Domain: parts[0], Name: parts[1], Value: parts[2]}, nil
}

func (s Selector) String() string {
	return s.Domain + ":" + s.Name + ":" + s.Value
}

// Matches reports whether f is the facet named by s.
func (s Selector) Matches(f models.Facet) bool {
	return f.Domain == s.Domain && f.Name == s.Name && FormatValue(f.Value) == s.Value
}

// Apply marks every facet named by one of sels as selected. A selector that
// names no facet is an error.
func Apply(all []models.Facet, sels []Selector) error {
	for _, s := range sels {
		found := false
		for i := range all {
			if s.Matches(all[i]) {
				all[i].Selected = true
				found = true
			}
		}
		if !found {
			return fmt.Errorf("no facet matches %s", s)
		}
	}
	return nil
}

// FormatValue prints a facet value the way selectors spell it.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
