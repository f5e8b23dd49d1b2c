package linear

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/minph/pkg/calibration"
)

func TestProbeIdealElectrode(t *testing.T) {
	// An ideal probe moves 59.16 mV per pH, which on the MinipH front end is
	// 59.16 * 5.25 / 1000 V, i.e. about 310.6 counts of a 4.096 V 12-bit ADC.
	countsPerPH := IdealSlope * 5.25 / 1000 / 4.096 * 4096
	tf := TransferFunction{Slope: -1 / countsPerPH, Intercept: 7 + 2048/countsPerPH}

	h, err := Probe(tf, DefaultProbeParams)
	require.NoError(t, err)
	assert.InDelta(t, IdealSlope, h.Slope, 1e-9)
	assert.InDelta(t, 100.0, h.Efficiency, 1e-9)
	assert.InDelta(t, 4.096/4096*1000/5.25, h.MillivoltsPerCount, 1e-12)
}

func TestProbeFromReferenceBuffers(t *testing.T) {
	tf, err := Fit([]calibration.Point{{PH: 4, Raw: 1925}, {PH: 7, Raw: 1498}, {PH: 10, Raw: 1001}}, DefaultMaxReading)
	require.NoError(t, err)

	h, err := Probe(tf, DefaultProbeParams)
	require.NoError(t, err)
	assert.InDelta(t, 29.4, h.Slope, 0.1)
	assert.Less(t, h.Efficiency, 60.0)
}

func TestProbeInvalid(t *testing.T) {
	_, err := Probe(TransferFunction{}, DefaultProbeParams)
	assert.ErrorIs(t, err, calibration.ErrDegenerateCalibration)

	_, err = Probe(TransferFunction{Slope: -0.006}, ProbeParams{})
	assert.Error(t, err)
}
