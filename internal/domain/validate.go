// internal/domain/validate.go
package domain

import (
	"math"
	"strings"
)

// NonEmpty trims s and reports whether anything is left.
func NonEmpty(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != ""
}

// RequireNonEmpty is NonEmpty that fails with an InvalidArgument naming field.
func RequireNonEmpty(field, s string) (string, error) {
	v, ok := NonEmpty(s)
	if !ok {
		return "", InvalidArgument(field, "must not be empty")
	}
	return v, nil
}

// Clamp coerces v into [lo, hi]. NaN is returned unchanged.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	return math.Min(math.Max(v, lo), hi)
}
