package linear

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/minph/pkg/calibration"
)

const tolerance = 1e-9

// onLine returns points with the given readings lying exactly on pH = m*raw + b.
func onLine(m, b float64, raws ...int) []calibration.Point {
	points := make([]calibration.Point, 0, len(raws))
	for _, raw := range raws {
		points = append(points, calibration.Point{PH: m*float64(raw) + b, Raw: raw})
	}
	return points
}

func TestFitRecoversExactLine(t *testing.T) {
	tests := []struct {
		name   string
		m, b   float64
		points []int
	}{
		{name: "two points", m: -0.00625, b: 16.0, points: []int{1280, 1760}},
		{name: "five points", m: -0.00625, b: 16.0, points: []int{800, 1100, 1500, 2000, 2400}},
		{name: "seven points positive slope", m: 0.0035, b: -0.4, points: []int{200, 900, 1200, 2100, 2750, 3300, 4000}},
		{name: "unsorted input", m: -0.007, b: 17.5, points: []int{2400, 1000, 1700, 300, 3100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tf, err := Fit(onLine(tt.m, tt.b, tt.points...), DefaultMaxReading)
			require.NoError(t, err)
			assert.InDelta(t, tt.m, tf.Slope, tolerance)
			assert.InDelta(t, tt.b, tf.Intercept, tolerance)
			assert.InDelta(t, 1.0, tf.RSquared, tolerance)
			assert.Equal(t, len(tt.points), tf.Points)
			assert.Empty(t, tf.Warnings)
		})
	}
}

func TestFitDegenerate(t *testing.T) {
	tests := []struct {
		name   string
		points []calibration.Point
	}{
		{name: "no points"},
		{name: "one point", points: []calibration.Point{{PH: 7, Raw: 1498}}},
		{name: "equal readings", points: []calibration.Point{{PH: 4, Raw: 1500}, {PH: 7, Raw: 1500}}},
		{name: "many equal readings", points: []calibration.Point{{PH: 4, Raw: 0}, {PH: 7, Raw: 0}, {PH: 10, Raw: 0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Fit(tt.points, DefaultMaxReading)
			assert.ErrorIs(t, err, calibration.ErrDegenerateCalibration)
		})
	}
}

func TestFitWarnings(t *testing.T) {
	t.Run("reading outside converter range", func(t *testing.T) {
		tf, err := Fit([]calibration.Point{{PH: 4, Raw: 5000}, {PH: 7, Raw: 1498}}, DefaultMaxReading)
		require.NoError(t, err)
		require.Len(t, tf.Warnings, 1)
		assert.Contains(t, tf.Warnings[0], "outside the converter range")
	})

	t.Run("range check disabled", func(t *testing.T) {
		tf, err := Fit([]calibration.Point{{PH: 4, Raw: 5000}, {PH: 7, Raw: 1498}}, 0)
		require.NoError(t, err)
		assert.Empty(t, tf.Warnings)
	})

	t.Run("non-monotonic", func(t *testing.T) {
		tf, err := Fit([]calibration.Point{
			{PH: 4, Raw: 1925},
			{PH: 7, Raw: 1000},
			{PH: 10, Raw: 1500},
		}, DefaultMaxReading)
		require.NoError(t, err)
		assert.NotEmpty(t, tf.Warnings)
	})

	t.Run("zero pH variance", func(t *testing.T) {
		tf, err := Fit([]calibration.Point{{PH: 7, Raw: 1000}, {PH: 7, Raw: 2000}}, DefaultMaxReading)
		require.NoError(t, err)
		assert.Zero(t, tf.Slope)
		assert.InDelta(t, 7.0, tf.Intercept, tolerance)
		assert.NotEmpty(t, tf.Warnings)

		_, err = tf.Raw(7)
		assert.ErrorIs(t, err, calibration.ErrDegenerateCalibration)
	})
}

func TestCalibratorNotCalibrated(t *testing.T) {
	c := NewCalibrator(DefaultMaxReading)

	_, err := c.Convert(1498)
	assert.ErrorIs(t, err, calibration.ErrNotCalibrated)

	_, err = c.Inverse(7)
	assert.ErrorIs(t, err, calibration.ErrNotCalibrated)

	_, err = c.TransferFunction()
	assert.ErrorIs(t, err, calibration.ErrNotCalibrated)

	assert.False(t, c.Calibrated())
	assert.True(t, c.Stale(0))
}

func TestCalibratorConvertMatchesCalibrationPoints(t *testing.T) {
	store, err := calibration.NewStoreFromMap(map[float64]int{
		1.68:  2905,
		4.01:  2380,
		6.86:  1754,
		9.18:  1236,
		12.45: 512,
	})
	require.NoError(t, err)

	c := NewCalibrator(DefaultMaxReading)
	tf, err := c.Fit(store.Snapshot())
	require.NoError(t, err)
	assert.Greater(t, tf.RSquared, 0.99)

	for _, p := range store.Snapshot().Points {
		ph, err := c.Convert(p.Raw)
		require.NoError(t, err)
		assert.InDelta(t, p.PH, ph, 0.1, "pH %v", p.PH)
	}
}

func TestEndToEndReferenceBuffers(t *testing.T) {
	store, err := calibration.NewStoreFromMap(map[float64]int{4.0: 1925, 7.0: 1498, 10.0: 1001})
	require.NoError(t, err)

	c := NewCalibrator(DefaultMaxReading)
	tf, err := c.Fit(store.Snapshot())
	require.NoError(t, err)
	assert.InDelta(t, -0.0064811, tf.Slope, 1e-7)
	assert.InDelta(t, 16.5575, tf.Intercept, 1e-4)

	// Three buffers do not lie on one line, so each conversion carries the
	// residual of its point.
	ph, err := c.Convert(1498)
	require.NoError(t, err)
	assert.Equal(t, 6.85, ph)

	ph, err = c.Convert(1001)
	require.NoError(t, err)
	assert.Equal(t, 10.07, ph)

	ph, err = c.Convert(1925)
	require.NoError(t, err)
	assert.Equal(t, 4.08, ph)
}

func TestEndToEndCollinearBuffers(t *testing.T) {
	store, err := calibration.NewStoreFromMap(map[float64]int{4.0: 1998, 7.0: 1498, 10.0: 998})
	require.NoError(t, err)

	c := NewCalibrator(DefaultMaxReading)
	_, err = c.Fit(store.Snapshot())
	require.NoError(t, err)

	ph, err := c.Convert(1498)
	require.NoError(t, err)
	assert.InDelta(t, 7.00, ph, 0.05)

	ph, err = c.Convert(998)
	require.NoError(t, err)
	assert.InDelta(t, 10.00, ph, 0.05)

	raw, err := c.Inverse(4.0)
	require.NoError(t, err)
	assert.InDelta(t, 1998, raw, 1e-6)
}

func TestCalibratorKeepsPreviousFitOnFailure(t *testing.T) {
	store, err := calibration.NewStoreFromMap(map[float64]int{4.0: 1998, 7.0: 1498})
	require.NoError(t, err)

	c := NewCalibrator(DefaultMaxReading)
	good, err := c.Fit(store.Snapshot())
	require.NoError(t, err)

	require.NoError(t, store.Delete(4.0))
	_, err = c.Fit(store.Snapshot())
	require.ErrorIs(t, err, calibration.ErrDegenerateCalibration)

	current, err := c.TransferFunction()
	require.NoError(t, err)
	assert.Equal(t, good, current)
	assert.True(t, c.Stale(store.Version()))

	ph, err := c.Convert(1498)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(ph))
	assert.Equal(t, 7.0, ph)
}

func TestCalibratorStale(t *testing.T) {
	store, err := calibration.NewStoreFromMap(map[float64]int{4.0: 1998, 7.0: 1498})
	require.NoError(t, err)

	c := NewCalibrator(DefaultMaxReading)
	_, err = c.Fit(store.Snapshot())
	require.NoError(t, err)
	assert.False(t, c.Stale(store.Version()))

	require.NoError(t, store.Set(10.0, 998))
	assert.True(t, c.Stale(store.Version()))
	assert.True(t, c.Calibrated())
}

func TestCalibratorConcurrentFitAndConvert(t *testing.T) {
	a := calibration.Set{Points: onLine(-0.005, 15, 1000, 2000)}
	b := calibration.Set{Points: onLine(-0.01, 20, 1000, 2000)}

	c := NewCalibrator(DefaultMaxReading)
	_, err := c.Fit(a)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			set := a
			if i%2 == 0 {
				set = b
			}
			_, _ = c.Fit(set)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tf, err := c.TransferFunction()
			if err != nil {
				t.Error(err)
				return
			}
			// Slope and intercept always come from the same fit.
			if math.Abs(tf.PH(1000)-10) > tolerance {
				t.Errorf("mixed transfer function: %+v", tf)
				return
			}
		}
	}()
	wg.Wait()
}

func TestRound(t *testing.T) {
	assert.Equal(t, 6.85, Round(6.848774))
	assert.Equal(t, 7.0, Round(6.999))
	assert.Equal(t, -0.01, Round(-0.0149))
}
