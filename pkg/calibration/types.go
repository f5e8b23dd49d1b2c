package calibration

import (
	"math"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Point is one known-good correspondence between a buffer solution's
// nominal pH and the sensor's raw output at that pH.
type Point struct {
	PH  float64 `json:"ph"`
	Raw int     `json:"raw"`
}

// Set is a snapshot of a Store. Points are sorted by ascending pH and have
// distinct pH values. Version identifies the store state it was taken from.
type Set struct {
	Points  []Point `json:"points"`
	Version uint64  `json:"version"`
}

// Len returns the number of points.
func (s Set) Len() int { return len(s.Points) }

// Map returns the points in the persisted form, keyed by FormatPH.
func (s Set) Map() map[string]int {
	m := make(map[string]int, len(s.Points))
	for _, p := range s.Points {
		m[FormatPH(p.PH)] = p.Raw
	}
	return m
}

// FormatPH returns the canonical key for a pH value: the shortest decimal
// that round-trips, with at least one fractional digit (4 -> "4.0").
func FormatPH(ph float64) string {
	s := strconv.FormatFloat(ph, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// ParsePH parses a pH key or argument. Only finite values are accepted.
func ParsePH(s string) (float64, error) {
	ph, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, pkgerrors.Wrapf(ErrInvalidPH, "%q is not a number", s)
	}
	return normalizePH(ph)
}

// ParseReading coerces textual input to a raw reading. Integral values are
// accepted as is, decimals are truncated toward zero. Negative or non-numeric
// input is rejected with ErrInvalidReading.
func ParseReading(s string) (int, error) {
	s = strings.TrimSpace(s)
	if i, err := strconv.Atoi(s); err == nil {
		return ValidateReading(i)
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, pkgerrors.Wrapf(ErrInvalidReading, "%q is not a number", s)
	}
	if f < 0 || f > math.MaxInt32 {
		return 0, pkgerrors.Wrapf(ErrInvalidReading, "%q is out of range", s)
	}

	return int(f), nil
}

// ValidateReading checks that a raw reading is non-negative.
func ValidateReading(raw int) (int, error) {
	if raw < 0 {
		return 0, pkgerrors.Wrapf(ErrInvalidReading, "reading must be non-negative, got %d", raw)
	}
	return raw, nil
}

func normalizePH(ph float64) (float64, error) {
	if math.IsNaN(ph) || math.IsInf(ph, 0) {
		return 0, pkgerrors.Wrapf(ErrInvalidPH, "pH must be finite, got %v", ph)
	}
	if ph == 0 {
		// Fold -0 into 0 so both address the same key.
		ph = 0
	}
	return ph, nil
}
