// Package units adapts unit conversion and duration parsing libraries to the
// narrow contracts the value refiner relies on.
package units

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	gounits "github.com/bcicen/go-units"
)

var (
	// ErrNoQuantity means the input is not "<number> <unit>".
	ErrNoQuantity = errors.New("not a quantity")
	// ErrUnknownUnit means a unit name could not be resolved.
	ErrUnknownUnit = errors.New("unknown unit")
)

var quantity = regexp.MustCompile(`^\s*([-+]?\d+(?:\.\d+)?)\s*([^\d\s./].*?)\s*$`)

// Converter converts quantity strings with github.com/bcicen/go-units.
type Converter struct{}

// NewConverter returns a ready converter.
func NewConverter() *Converter {
	return &Converter{}
}

// Convert parses q as a number followed by a unit and expresses it in unit.
func (c *Converter) Convert(q, unit string) (float64, error) {
	m := quantity.FindStringSubmatch(q)
	if m == nil {
		return 0, fmt.Errorf("convert %q: %w", q, ErrNoQuantity)
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("convert %q: %w", q, err)
	}
	from, err := lookup(m[2])
	if err != nil {
		return 0, fmt.Errorf("convert %q: %w", q, err)
	}
	to, err := lookup(unit)
	if err != nil {
		return 0, fmt.Errorf("convert %q: %w", q, err)
	}
	out, err := gounits.ConvertFloat(v, from, to)
	if err != nil {
		return 0, fmt.Errorf("convert %q to %s: %w", q, unit, err)
	}
	return out.Float(), nil
}

// lookup resolves a unit by name, symbol or alias, retrying lower case and
// singular forms ("Grams" -> "gram").
func lookup(name string) (gounits.Unit, error) {
	name = strings.TrimSpace(name)
	candidates := []string{name, strings.ToLower(name)}
	if lower := strings.ToLower(name); len(lower) > 2 && strings.HasSuffix(lower, "s") {
		candidates = append(candidates, strings.TrimSuffix(lower, "s"))
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if u, err := gounits.Find(c); err == nil {
			return u, nil
		}
	}
	return gounits.Unit{}, fmt.Errorf("%w: %q", ErrUnknownUnit, name)
}
