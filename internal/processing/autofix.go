package processing

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoNumericToken means auto-fix found nothing it could read as a number.
var ErrNoNumericToken = errors.New("no numeric token")

// numericToken matches a mixed number ("1 1/2"), a fraction ("3/4"),
// a decimal ("1.5") or an integer ("12").
var numericToken = regexp.MustCompile(`\d+(?:\s+\d+/\d+|[./]\d+)?`)

// AutoFix extracts the first number from free text.
func AutoFix(text string) (float64, error) {
	token := numericToken.FindString(text)
	if token == "" {
		return 0, fmt.Errorf("auto-fix %q: %w", text, ErrNoNumericToken)
	}
	v, err := evalNumber(token)
	if err != nil {
		return 0, fmt.Errorf("auto-fix %q: %w", text, err)
	}
	return v, nil
}

func evalNumber(token string) (float64, error) {
	if parts := strings.Fields(token); len(parts) > 1 {
		whole, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return 0, err
		}
		frac, err := evalFraction(parts[1])
		if err != nil {
			return 0, err
		}
		return whole + frac, nil
	}
	if strings.Contains(token, "/") {
		return evalFraction(token)
	}
	return strconv.ParseFloat(token, 64)
}

func evalFraction(token string) (float64, error) {
	num, den, ok := strings.Cut(token, "/")
	if !ok {
		return strconv.ParseFloat(token, 64)
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, err
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, err
	}
	v := n / d
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("fraction %q has a zero denominator", token)
	}
	return v, nil
}
