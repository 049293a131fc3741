package units

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sosodev/duration"
)

const (
	day   = 24 * time.Hour
	week  = 7 * day
	month = time.Duration(float64(day) * 146097 / 4800)
	year  = 12 * month
)

// clock matches "[d.]HH:MM[:SS[.fff]]", optionally signed.
var clock = regexp.MustCompile(`^([-+])?(?:(\d*)[. ])?(\d+):(\d+)(?::(\d+)(\.\d*)?)?$`)

var durationUnits = map[string]time.Duration{
	"ms": time.Millisecond, "millisecond": time.Millisecond, "milliseconds": time.Millisecond,
	"s": time.Second, "sec": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": day, "day": day, "days": day,
	"w": week, "week": week, "weeks": week,
	"M": month, "month": month, "months": month,
	"y": year, "year": year, "years": year,
}

// Durations parses ISO-8601 durations with github.com/sosodev/duration and
// clock-style durations such as "1:30:00". ISO months and years use the same
// lengths as the "M" and "y" units. Values beyond the time.Duration range
// parse as 0.
type Durations struct{}

// NewDurations returns a ready parser.
func NewDurations() *Durations {
	return &Durations{}
}

// Parse returns 0 for anything it cannot read.
func (Durations) Parse(raw string) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if m := clock.FindStringSubmatch(raw); m != nil {
		return parseClock(m)
	}
	if !strings.HasPrefix(strings.TrimLeft(raw, "+-"), "P") {
		return 0
	}
	d, err := duration.Parse(raw)
	if err != nil {
		return 0
	}
	total := d.Years*float64(year) + d.Months*float64(month) + d.Weeks*float64(week) +
		d.Days*float64(day) + d.Hours*float64(time.Hour) + d.Minutes*float64(time.Minute) +
		d.Seconds*float64(time.Second)
	if d.Negative {
		total = -total
	}
	return fromNanos(total)
}

// fromNanos returns 0 when n does not fit in a time.Duration.
func fromNanos(n float64) time.Duration {
	if math.IsNaN(n) || math.Abs(n) >= math.MaxInt64 {
		return 0
	}
	return time.Duration(n)
}

// AsUnit expresses d as a number of unit.
func (Durations) AsUnit(d time.Duration, unit string) (float64, error) {
	size, ok := durationUnits[unit]
	if !ok {
		size, ok = durationUnits[strings.ToLower(unit)]
	}
	if !ok {
		return 0, fmt.Errorf("duration unit %q: %w", unit, ErrUnknownUnit)
	}
	return float64(d) / float64(size), nil
}

func parseClock(m []string) time.Duration {
	num := func(v string) float64 {
		n, _ := strconv.ParseFloat(v, 64)
		return n
	}
	total := num(m[2])*float64(day) + num(m[3])*float64(time.Hour) + num(m[4])*float64(time.Minute) +
		num(m[5])*float64(time.Second) + num("0"+m[6])*float64(time.Second)
	if m[1] == "-" {
		total = -total
	}
	return fromNanos(total)
}
