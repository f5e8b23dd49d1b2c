package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/minph/pkg/config"
	"github.com/charlie0129/minph/pkg/sensor"
	"github.com/charlie0129/minph/pkg/types"
)

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "ph.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"4.0": 1925, "7.0": 1498, "10.0": 1001}`), 0644))

	var out bytes.Buffer
	cmd := NewCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{
		"inspect", file,
		"--config", filepath.Join(dir, "missing.json"),
		"--daemon-socket", filepath.Join(dir, "d.sock"),
	})

	require.NoError(t, cmd.Execute())

	s := out.String()
	assert.Contains(t, s, "1925")
	assert.Contains(t, s, "-0.006481")
	assert.Contains(t, s, "points: 3")
	assert.Contains(t, s, "Efficiency")
}

func TestInspectDegenerate(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "ph.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"4.0": 1925}`), 0644))

	cmd := NewCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"inspect", file, "--config", filepath.Join(dir, "missing.json")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "degenerate calibration")
}

func TestParsePHArg(t *testing.T) {
	ph, err := parsePHArg([]string{"6.86"})
	require.NoError(t, err)
	assert.Equal(t, 6.86, ph)

	_, err = parsePHArg([]string{"NaN"})
	assert.Error(t, err)

	_, err = parsePHArg(nil)
	assert.Error(t, err)
}

func TestEfficiencyText(t *testing.T) {
	for _, e := range []float64{100, 90, 50} {
		assert.True(t, strings.Contains(efficiencyText(e), "%"))
	}
}

func TestInstallOptionsApply(t *testing.T) {
	conf, err := config.NewFileWithFs(afero.NewMemMapFs(), "/etc/minph/config.json")
	require.NoError(t, err)

	require.NoError(t, installOptions{driver: sensor.DriverMock}.apply(conf))
	assert.Equal(t, sensor.DriverMock, conf.Driver())
	assert.True(t, conf.AutoFit())
	assert.Equal(t, "/etc/minph/ph.json", conf.CalibrationFile())

	require.NoError(t, installOptions{
		allowNonRootAccess: true,
		calibrationFile:    "/var/lib/minph/ph.json",
		autoFitSet:         true,
	}.apply(conf))
	assert.True(t, conf.AllowNonRootAccess())
	assert.False(t, conf.AutoFit())
	assert.Equal(t, "/var/lib/minph/ph.json", conf.CalibrationFile())
	assert.Equal(t, sensor.DriverMock, conf.Driver())

	assert.Error(t, installOptions{driver: "spi"}.apply(conf))
}

func TestFormatSample(t *testing.T) {
	ph := 6.85
	ts := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)

	line := formatSample(types.Sample{Time: ts, Raw: 1498, PH: &ph})
	assert.Contains(t, line, "6.85")
	assert.Contains(t, line, "raw: 1498")

	line = formatSample(types.Sample{Time: ts, Error: "sensor i/o error"})
	assert.Contains(t, line, "error: sensor i/o error")
	assert.NotContains(t, line, "raw:")
}
