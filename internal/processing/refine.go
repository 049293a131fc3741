package processing

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/DeafMist/pagemap-facets/internal/models"
)

// Converter turns a quantity string such as "250 g" into a scalar in unit.
type Converter interface {
	Convert(quantity, unit string) (float64, error)
}

// DurationParser reads duration strings. Parse returns 0 when the input is not
// a recognisable duration.
type DurationParser interface {
	Parse(raw string) time.Duration
	AsUnit(d time.Duration, unit string) (float64, error)
}

// Refiner normalises raw attribute values according to their declared type.
type Refiner struct {
	converter Converter
	durations DurationParser
	log       *slog.Logger
}

// NewRefiner wires the conversion capabilities used by numeric and duration terms.
func NewRefiner(converter Converter, durations DurationParser, logger *slog.Logger) *Refiner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Refiner{converter: converter, durations: durations, log: logger}
}

// Refine returns raw unchanged for passthrough types and a float64 otherwise.
// The only error is an auto-fix that found no number.
func (r *Refiner) Refine(raw any, declared, unit string) (any, error) {
	switch models.ParseDataType(declared) {
	case models.Numeric:
		return r.refineNumeric(toText(raw), unit)
	case models.Duration:
		return r.refineDuration(toText(raw), unit)
	default:
		return raw, nil
	}
}

func (r *Refiner) refineNumeric(text, unit string) (any, error) {
	if unit != "" && r.converter != nil {
		v, err := r.converter.Convert(text, unit)
		if err == nil {
			return v, nil
		}
		r.log.Debug("unit conversion failed",
			slog.String("value", text),
			slog.String("unit", unit),
			slog.Any("err", err),
		)
	}
	return r.autoFix(models.Numeric, text)
}

func (r *Refiner) refineDuration(text, unit string) (any, error) {
	if r.durations != nil {
		// A zero duration covers both unparseable input and a literal "PT0S".
		if d := r.durations.Parse(text); d != 0 {
			v, err := r.durations.AsUnit(d, unit)
			if err == nil {
				return v, nil
			}
			r.log.Debug("duration conversion failed",
				slog.String("value", text),
				slog.String("unit", unit),
				slog.Any("err", err),
			)
		}
	}
	return r.autoFix(models.Duration, text)
}

func (r *Refiner) autoFix(kind models.DataType, text string) (any, error) {
	v, err := AutoFix(text)
	if err != nil {
		return nil, err
	}
	r.log.Info("applying auto-fix",
		slog.String("type", kind.String()),
		slog.String("from", text),
		slog.Float64("to", v),
	)
	return v, nil
}

func toText(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
