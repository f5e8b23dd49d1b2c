package linear

import (
	"math"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/minph/pkg/calibration"
)

// IdealSlope is the Nernst slope of a glass electrode at 25 °C, in mV/pH.
const IdealSlope = 59.16

// ProbeParams describes the analog front end between probe and converter.
type ProbeParams struct {
	// ReferenceVoltage of the converter, in volts.
	ReferenceVoltage float64 `json:"referenceVoltage"`
	// AmplifierGain of the op-amp stage before the converter.
	AmplifierGain float64 `json:"amplifierGain"`
	// Bits of the converter.
	Bits int `json:"bits"`
}

// DefaultProbeParams matches the MinipH board: 4.096 V reference, gain 5.25,
// 12-bit MCP3221.
var DefaultProbeParams = ProbeParams{
	ReferenceVoltage: 4.096,
	AmplifierGain:    5.25,
	Bits:             12,
}

// ProbeHealth describes how far a probe has drifted from an ideal electrode.
type ProbeHealth struct {
	// Slope is the probe output per pH unit, in mV/pH, before amplification.
	Slope float64 `json:"slope"`
	// Efficiency is Slope as a percentage of IdealSlope. Probes below about
	// 85% should be cleaned or replaced.
	Efficiency float64 `json:"efficiency"`
	// MillivoltsPerCount is the probe voltage represented by one converter count.
	MillivoltsPerCount float64 `json:"millivoltsPerCount"`
}

// Probe computes the health of the probe described by tf.
func Probe(tf TransferFunction, p ProbeParams) (ProbeHealth, error) {
	if p.ReferenceVoltage <= 0 || p.AmplifierGain <= 0 || p.Bits <= 0 {
		return ProbeHealth{}, pkgerrors.Errorf("invalid probe parameters %+v", p)
	}
	if tf.Slope == 0 {
		return ProbeHealth{}, pkgerrors.Wrap(calibration.ErrDegenerateCalibration, "zero slope")
	}

	mvPerCount := p.ReferenceVoltage * 1000 / float64(int(1)<<p.Bits) / p.AmplifierGain
	countsPerPH := 1 / tf.Slope
	slope := math.Abs(countsPerPH * mvPerCount)

	return ProbeHealth{
		Slope:              slope,
		Efficiency:         slope / IdealSlope * 100,
		MillivoltsPerCount: mvPerCount,
	}, nil
}
