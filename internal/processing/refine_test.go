package processing_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/pagemap-facets/internal/processing"
	"github.com/DeafMist/pagemap-facets/internal/units"
)

type stubConverter struct {
	calls  int
	result float64
	err    error
}

func (s *stubConverter) Convert(_, _ string) (float64, error) {
	s.calls++
	return s.result, s.err
}

type stubDurations struct {
	parsed time.Duration
	err    error
}

func (s stubDurations) Parse(string) time.Duration { return s.parsed }

func (s stubDurations) AsUnit(d time.Duration, _ string) (float64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return d.Minutes(), nil
}

func TestRefineNumericConverts(t *testing.T) {
	conv := &stubConverter{result: 250}
	r := processing.NewRefiner(conv, stubDurations{}, nil)

	got, err := r.Refine("0.25 kg", "numeric", "g")
	require.NoError(t, err)
	require.Equal(t, 250.0, got)
	require.Equal(t, 1, conv.calls)
}

func TestRefineNumericFallsBackToAutoFix(t *testing.T) {
	conv := &stubConverter{err: errors.New("incompatible units")}
	r := processing.NewRefiner(conv, stubDurations{}, nil)

	got, err := r.Refine("1 1/2 cups", "numeric", "g")
	require.NoError(t, err)
	require.Equal(t, 1.5, got)
}

func TestRefineNumericWithoutUnitSkipsConverter(t *testing.T) {
	conv := &stubConverter{result: 99}
	r := processing.NewRefiner(conv, stubDurations{}, nil)

	got, err := r.Refine("320 calories", "numeric", "")
	require.NoError(t, err)
	require.Equal(t, 320.0, got)
	require.Zero(t, conv.calls)
}

func TestRefineNumericAcceptsJSONNumbers(t *testing.T) {
	r := processing.NewRefiner(&stubConverter{err: errors.New("no unit")}, stubDurations{}, nil)

	got, err := r.Refine(4.0, "numeric", "")
	require.NoError(t, err)
	require.Equal(t, 4.0, got)
}

func TestRefineNumericHardFailure(t *testing.T) {
	r := processing.NewRefiner(&stubConverter{err: errors.New("bad")}, stubDurations{}, nil)

	_, err := r.Refine("a handful", "numeric", "g")
	require.ErrorIs(t, err, processing.ErrNoNumericToken)
}

func TestRefineDuration(t *testing.T) {
	r := processing.NewRefiner(nil, stubDurations{parsed: 90 * time.Minute}, nil)

	got, err := r.Refine("PT1H30M", "duration", "minutes")
	require.NoError(t, err)
	require.Equal(t, 90.0, got)
}

func TestRefineZeroDurationFallsBackToAutoFix(t *testing.T) {
	r := processing.NewRefiner(nil, stubDurations{}, nil)

	got, err := r.Refine("45 mins", "duration", "minutes")
	require.NoError(t, err)
	require.Equal(t, 45.0, got)
}

func TestRefineOutOfRangeDurationFallsBackToAutoFix(t *testing.T) {
	r := processing.NewRefiner(nil, units.NewDurations(), nil)

	got, err := r.Refine("P1000Y", "duration", "minutes")
	require.NoError(t, err)
	require.Equal(t, 1000.0, got)

	got, err = r.Refine("9999999999:00", "duration", "hours")
	require.NoError(t, err)
	require.Equal(t, 9999999999.0, got)
}

func TestRefineDurationUnitFailureFallsBack(t *testing.T) {
	r := processing.NewRefiner(nil, stubDurations{parsed: time.Hour, err: errors.New("unknown unit")}, nil)

	got, err := r.Refine("PT1H", "duration", "")
	require.NoError(t, err)
	require.Equal(t, 1.0, got)
}

func TestRefinePassthrough(t *testing.T) {
	r := processing.NewRefiner(&stubConverter{result: 1}, stubDurations{parsed: time.Hour}, nil)

	for _, declared := range []string{"text", "", "date", "Numeric"} {
		got, err := r.Refine("1 1/2 cups", declared, "g")
		require.NoError(t, err)
		require.Equal(t, "1 1/2 cups", got, declared)
	}

	raw := map[string]any{"nested": true}
	got, err := r.Refine(raw, "text", "")
	require.NoError(t, err)
	require.Equal(t, raw, got)
}

func TestRefineIsDeterministic(t *testing.T) {
	r := processing.NewRefiner(&stubConverter{err: errors.New("bad")}, stubDurations{}, nil)

	first, err := r.Refine("3/4 cup", "numeric", "ml")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := r.Refine("3/4 cup", "numeric", "ml")
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}
