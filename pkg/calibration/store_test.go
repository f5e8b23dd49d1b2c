package calibration

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const calibsPath = "/etc/minph/ph.json"

func newMemStore(t *testing.T, points map[float64]int) (*Store, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	s := NewStoreWithFs(fs)
	for ph, raw := range points {
		require.NoError(t, s.Set(ph, raw))
	}
	return s, fs
}

func TestStoreSetOverwrites(t *testing.T) {
	s, _ := newMemStore(t, nil)

	require.NoError(t, s.Set(7.0, 1500))
	require.NoError(t, s.Set(7.0, 1600))

	assert.Equal(t, 1, s.Len())
	raw, err := s.Get(7.0)
	require.NoError(t, err)
	assert.Equal(t, 1600, raw)
}

func TestStoreSetRejectsInvalidInput(t *testing.T) {
	s, _ := newMemStore(t, map[float64]int{4.0: 1925})
	before := s.Snapshot()

	err := s.Set(7.0, -1)
	assert.ErrorIs(t, err, ErrInvalidReading)

	err = s.Set(math.NaN(), 100)
	assert.ErrorIs(t, err, ErrInvalidPH)

	err = s.Set(math.Inf(1), 100)
	assert.ErrorIs(t, err, ErrInvalidPH)

	assert.Equal(t, before, s.Snapshot())
}

func TestStoreGetDistinguishesZeroFromMissing(t *testing.T) {
	s, _ := newMemStore(t, map[float64]int{0: 0})

	raw, err := s.Get(0)
	require.NoError(t, err)
	assert.Equal(t, 0, raw)

	// -0 and 0 are the same key.
	raw, err = s.Get(math.Copysign(0, -1))
	require.NoError(t, err)
	assert.Equal(t, 0, raw)

	_, err = s.Get(7.0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreDeleteIsIdempotent(t *testing.T) {
	s, _ := newMemStore(t, map[float64]int{4.0: 1925, 7.0: 1498})
	before := s.Snapshot()

	require.NoError(t, s.Delete(10.0))
	assert.Equal(t, before, s.Snapshot())

	require.NoError(t, s.Delete(4.0))
	require.NoError(t, s.Delete(4.0))
	assert.Equal(t, 1, s.Len())
	_, err := s.Get(4.0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreVersion(t *testing.T) {
	s, _ := newMemStore(t, nil)
	v0 := s.Version()

	require.NoError(t, s.Set(4.0, 1925))
	v1 := s.Version()
	assert.Greater(t, v1, v0)

	// Deleting an absent key changes nothing.
	require.NoError(t, s.Delete(10.0))
	assert.Equal(t, v1, s.Version())

	require.Error(t, s.Set(4.0, -5))
	assert.Equal(t, v1, s.Version())
	assert.Equal(t, v1, s.Snapshot().Version)
}

func TestSnapshotIsSortedCopy(t *testing.T) {
	s, _ := newMemStore(t, map[float64]int{10.0: 1001, 4.0: 1925, 7.0: 1498})

	set := s.Snapshot()
	assert.Equal(t, []Point{{4.0, 1925}, {7.0, 1498}, {10.0, 1001}}, set.Points)

	set.Points[0].Raw = 1
	raw, err := s.Get(4.0)
	require.NoError(t, err)
	assert.Equal(t, 1925, raw)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		points map[float64]int
	}{
		{name: "empty", points: map[float64]int{}},
		{name: "reference buffers", points: map[float64]int{4.0: 1925, 7.0: 1498, 10.0: 1001}},
		{name: "fractional pH", points: map[float64]int{1.68: 2900, 4.01: 1920, 6.86: 1530, 9.18: 1190, 12.45: 700}},
		{name: "zero reading", points: map[float64]int{0: 0, 14: 4095}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, fs := newMemStore(t, tt.points)
			require.NoError(t, s.Save(calibsPath))

			loaded := NewStoreWithFs(fs)
			require.NoError(t, loaded.Load(calibsPath))
			assert.Equal(t, s.Snapshot().Points, loaded.Snapshot().Points)
		})
	}
}

func TestSaveLoadRoundTripOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ph.json")

	s, err := NewStoreFromMap(map[float64]int{4.0: 1925, 7.0: 1498, 10.0: 1001})
	require.NoError(t, err)
	require.NoError(t, s.Save(path))

	loaded := NewStore()
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, s.Snapshot().Points, loaded.Snapshot().Points)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestSaveFormat(t *testing.T) {
	s, fs := newMemStore(t, map[float64]int{10.0: 1001, 4.0: 1925, 7.0: 1498})
	require.NoError(t, s.Save(calibsPath))

	b, err := afero.ReadFile(fs, calibsPath)
	require.NoError(t, err)
	assert.Equal(t, "{\n    \"10.0\": 1001,\n    \"4.0\": 1925,\n    \"7.0\": 1498\n}\n", string(b))
}

func TestLoadHandWrittenFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, calibsPath, []byte(`{
    "4.0": 1925,
    "7.0": 1498,
    "10.0": 1001
}`), 0644))

	s := NewStoreWithFs(fs)
	require.NoError(t, s.Load(calibsPath))

	raw, err := s.Get(10)
	require.NoError(t, err)
	assert.Equal(t, 1001, raw)
}

func TestLoadIsAllOrNothing(t *testing.T) {
	tests := []struct {
		name    string
		content string
		missing bool
	}{
		{name: "missing file", missing: true},
		{name: "empty file", content: "   \n"},
		{name: "not json", content: "4.0=1925"},
		{name: "truncated", content: `{"4.0": 1925, "7.0": 14`},
		{name: "array", content: `[1925, 1498]`},
		{name: "null", content: `null`},
		{name: "trailing garbage", content: `{"4.0": 1925} {"7.0": 1498}`},
		{name: "non-numeric key", content: `{"4.0": 1925, "seven": 1498}`},
		{name: "non-finite key", content: `{"4.0": 1925, "NaN": 1498}`},
		{name: "negative reading", content: `{"4.0": 1925, "7.0": -1}`},
		{name: "fractional reading", content: `{"4.0": 1925, "7.0": 1498.5}`},
		{name: "string reading", content: `{"4.0": 1925, "7.0": "1498"}`},
		{name: "duplicate pH", content: `{"7": 1925, "7.0": 1498}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, fs := newMemStore(t, map[float64]int{4.0: 1000, 7.0: 2000})
			before := s.Snapshot()
			if !tt.missing {
				require.NoError(t, afero.WriteFile(fs, calibsPath, []byte(tt.content), 0644))
			}

			err := s.Load(calibsPath)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrStorage)

			var serr *StorageError
			require.True(t, errors.As(err, &serr))
			assert.Equal(t, calibsPath, serr.Path)

			assert.Equal(t, before, s.Snapshot())
		})
	}
}

// fullDiskFs fails every write to a newly created file halfway through.
type fullDiskFs struct {
	afero.Fs
}

func (f fullDiskFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	file, err := f.Fs.OpenFile(name, flag, perm)
	if err != nil || flag&os.O_CREATE == 0 {
		return file, err
	}
	return &fullDiskFile{File: file}, nil
}

func (f fullDiskFs) Create(name string) (afero.File, error) {
	return f.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
}

type fullDiskFile struct {
	afero.File
}

func (f *fullDiskFile) Write(p []byte) (int, error) {
	n, _ := f.File.Write(p[:len(p)/2])
	return n, syscall.ENOSPC
}

func TestSaveFailureKeepsPreviousFile(t *testing.T) {
	mem := afero.NewMemMapFs()

	s := NewStoreWithFs(mem)
	require.NoError(t, s.Set(4.0, 1925))
	require.NoError(t, s.Set(7.0, 1498))
	require.NoError(t, s.Save(calibsPath))
	saved, err := afero.ReadFile(mem, calibsPath)
	require.NoError(t, err)

	failing := NewStoreWithFs(fullDiskFs{Fs: mem})
	require.NoError(t, failing.Set(4.0, 1))
	require.NoError(t, failing.Set(7.0, 2))
	require.NoError(t, failing.Set(10.0, 3))

	err = failing.Save(calibsPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, syscall.ENOSPC)

	after, err := afero.ReadFile(mem, calibsPath)
	require.NoError(t, err)
	assert.Equal(t, saved, after)

	reloaded := NewStoreWithFs(mem)
	require.NoError(t, reloaded.Load(calibsPath))
	assert.Equal(t, s.Snapshot().Points, reloaded.Snapshot().Points)

	entries, err := afero.ReadDir(mem, filepath.Dir(calibsPath))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.Contains(e.Name(), ".tmp-"), "leftover temporary file %s", e.Name())
	}
}

func TestFormatPH(t *testing.T) {
	tests := map[float64]string{
		4:     "4.0",
		7.0:   "7.0",
		10:    "10.0",
		6.86:  "6.86",
		4.01:  "4.01",
		0:     "0.0",
		12.45: "12.45",
	}
	for ph, want := range tests {
		assert.Equal(t, want, FormatPH(ph))
		parsed, err := ParsePH(want)
		require.NoError(t, err)
		assert.Equal(t, ph, parsed)
	}
}

func TestParseReading(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "1925", want: 1925},
		{in: " 0 ", want: 0},
		{in: "1925.0", want: 1925},
		{in: "1925.9", want: 1925},
		{in: "-1", wantErr: true},
		{in: "-0.5", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
		{in: "NaN", wantErr: true},
		{in: "1e30", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseReading(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidReading)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
