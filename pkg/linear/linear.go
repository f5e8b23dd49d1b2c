// Package linear derives the transfer function of a pH probe from its
// calibration points and applies it to raw readings.
//
// The fit is an ordinary least-squares regression with the raw reading as the
// independent variable and pH as the dependent one, so that
//
//	pH = Slope*raw + Intercept
//
// Every point is weighted equally and no outliers are rejected.
package linear

import (
	"fmt"
	"math"
	"sort"
	"sync/atomic"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/minph/pkg/calibration"
)

// DefaultMaxReading is the largest reading of a 12-bit converter.
const DefaultMaxReading = 1<<12 - 1

// Precision is the number of decimal places Convert rounds to.
const Precision = 2

// TransferFunction maps raw readings to pH. It is never modified after Fit
// returns it.
type TransferFunction struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	// RSquared is the coefficient of determination of the fit.
	RSquared float64 `json:"rSquared"`
	// Points is the number of calibration points the fit used.
	Points int `json:"points"`
	// Version is the calibration.Set version the fit was computed from.
	Version uint64 `json:"version"`
	// Warnings flags suspect calibration data. A fit with warnings is still
	// usable.
	Warnings []string `json:"warnings,omitempty"`
}

// PH applies the transfer function without rounding.
func (tf TransferFunction) PH(raw float64) float64 {
	return tf.Slope*raw + tf.Intercept
}

// Raw is the inverse of PH.
func (tf TransferFunction) Raw(ph float64) (float64, error) {
	if tf.Slope == 0 {
		return 0, pkgerrors.Wrap(calibration.ErrDegenerateCalibration, "zero slope cannot be inverted")
	}
	return (ph - tf.Intercept) / tf.Slope, nil
}

// Fit computes the least-squares line through points. maxReading is the top
// of the converter's range and only affects warnings; pass 0 to skip the
// range check.
func Fit(points []calibration.Point, maxReading int) (TransferFunction, error) {
	if len(points) < 2 {
		return TransferFunction{}, pkgerrors.Wrapf(calibration.ErrDegenerateCalibration,
			"need at least 2 calibration points, got %d", len(points))
	}

	n := float64(len(points))
	var meanX, meanY float64
	for _, p := range points {
		meanX += float64(p.Raw)
		meanY += p.PH
	}
	meanX /= n
	meanY /= n

	var sxx, sxy, syy float64
	for _, p := range points {
		dx := float64(p.Raw) - meanX
		dy := p.PH - meanY
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}

	if sxx == 0 {
		return TransferFunction{}, pkgerrors.Wrapf(calibration.ErrDegenerateCalibration,
			"all %d calibration points have the same raw reading %d", len(points), points[0].Raw)
	}

	slope := sxy / sxx
	intercept := meanY - slope*meanX
	if math.IsNaN(slope) || math.IsInf(slope, 0) || math.IsNaN(intercept) || math.IsInf(intercept, 0) {
		return TransferFunction{}, pkgerrors.Wrapf(calibration.ErrDegenerateCalibration,
			"fit produced slope %v and intercept %v", slope, intercept)
	}

	rSquared := 1.0
	if syy != 0 {
		rSquared = sxy * sxy / (sxx * syy)
	}

	return TransferFunction{
		Slope:     slope,
		Intercept: intercept,
		RSquared:  rSquared,
		Points:    len(points),
		Warnings:  inspect(points, slope, maxReading),
	}, nil
}

// inspect flags calibration data that produces a nonsensical line.
func inspect(points []calibration.Point, slope float64, maxReading int) []string {
	var warnings []string

	for _, p := range points {
		if maxReading > 0 && p.Raw > maxReading {
			warnings = append(warnings, fmt.Sprintf("reading %d for pH %s is outside the converter range [0, %d]",
				p.Raw, calibration.FormatPH(p.PH), maxReading))
		}
	}

	if slope == 0 {
		warnings = append(warnings, "all calibration points have the same pH, every reading converts to it")
		return warnings
	}

	byRaw := make([]calibration.Point, len(points))
	copy(byRaw, points)
	sort.SliceStable(byRaw, func(i, j int) bool { return byRaw[i].Raw < byRaw[j].Raw })
	for i := 1; i < len(byRaw); i++ {
		prev, cur := byRaw[i-1], byRaw[i]
		if cur.Raw == prev.Raw {
			warnings = append(warnings, fmt.Sprintf("pH %s and pH %s have the same reading %d",
				calibration.FormatPH(prev.PH), calibration.FormatPH(cur.PH), cur.Raw))
			continue
		}
		if (cur.PH-prev.PH)*slope < 0 {
			warnings = append(warnings, fmt.Sprintf("pH %s (reading %d) and pH %s (reading %d) are out of order",
				calibration.FormatPH(prev.PH), prev.Raw, calibration.FormatPH(cur.PH), cur.Raw))
		}
	}

	return warnings
}

// Calibrator holds the most recent transfer function. Fit replaces it
// atomically, so concurrent Convert calls never see a half-updated pair.
type Calibrator struct {
	maxReading int
	current    atomic.Pointer[TransferFunction]
}

// NewCalibrator returns an uncalibrated Calibrator for a converter whose
// largest reading is maxReading.
func NewCalibrator(maxReading int) *Calibrator {
	return &Calibrator{maxReading: maxReading}
}

// MaxReadingForBits returns the largest reading of a bits-wide converter.
func MaxReadingForBits(bits int) int {
	return 1<<bits - 1
}

// Fit computes a new transfer function from set and makes it current. On
// error the previous transfer function stays in effect.
func (c *Calibrator) Fit(set calibration.Set) (TransferFunction, error) {
	tf, err := Fit(set.Points, c.maxReading)
	if err != nil {
		return TransferFunction{}, err
	}
	tf.Version = set.Version

	c.current.Store(&tf)

	return tf, nil
}

// TransferFunction returns the current transfer function, or
// ErrNotCalibrated.
func (c *Calibrator) TransferFunction() (TransferFunction, error) {
	tf := c.current.Load()
	if tf == nil {
		return TransferFunction{}, calibration.ErrNotCalibrated
	}
	return *tf, nil
}

// Calibrated reports whether a fit has succeeded.
func (c *Calibrator) Calibrated() bool {
	return c.current.Load() != nil
}

// Stale reports whether the current fit was computed from a store version
// other than version. An uncalibrated Calibrator is always stale.
func (c *Calibrator) Stale(version uint64) bool {
	tf := c.current.Load()
	return tf == nil || tf.Version != version
}

// Convert turns a raw reading into a pH value rounded to Precision decimals.
func (c *Calibrator) Convert(raw int) (float64, error) {
	tf := c.current.Load()
	if tf == nil {
		return 0, calibration.ErrNotCalibrated
	}
	return Round(tf.PH(float64(raw))), nil
}

// Inverse returns the raw reading expected at ph.
func (c *Calibrator) Inverse(ph float64) (float64, error) {
	tf := c.current.Load()
	if tf == nil {
		return 0, calibration.ErrNotCalibrated
	}
	return tf.Raw(ph)
}

// Round rounds v to Precision decimal places.
func Round(v float64) float64 {
	const scale = 100 // 10^Precision
	return math.Round(v*scale) / scale
}
