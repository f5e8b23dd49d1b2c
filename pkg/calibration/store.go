package calibration

import (
	"bytes"
	"encoding/json"
	"io"
	"sort"
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/charlie0129/minph/pkg/utils/atomicfile"
)

// Store owns the calibration points of one probe. It is safe for concurrent
// use. Nothing is persisted implicitly: call Save after mutating.
type Store struct {
	mu      *sync.RWMutex
	fs      afero.Fs
	points  map[float64]int
	version uint64
}

// NewStore returns an empty store backed by the OS filesystem.
func NewStore() *Store {
	return NewStoreWithFs(afero.NewOsFs())
}

// NewStoreWithFs returns an empty store that loads and saves through fs.
func NewStoreWithFs(fs afero.Fs) *Store {
	return &Store{
		mu:     &sync.RWMutex{},
		fs:     fs,
		points: make(map[float64]int),
	}
}

// NewStoreFromMap returns a store backed by the OS filesystem and prefilled
// with points, which are validated like Set does.
func NewStoreFromMap(points map[float64]int) (*Store, error) {
	s := NewStore()
	for ph, raw := range points {
		if err := s.Set(ph, raw); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Set inserts or overwrites the reading for ph. The store is unchanged on
// error.
func (s *Store) Set(ph float64, raw int) error {
	ph, err := normalizePH(ph)
	if err != nil {
		return err
	}
	raw, err = ValidateReading(raw)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.points[ph] = raw
	s.version++

	return nil
}

// Delete removes the point for ph. Deleting an absent point is not an error.
func (s *Store) Delete(ph float64) error {
	ph, err := normalizePH(ph)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.points[ph]; !ok {
		return nil
	}
	delete(s.points, ph)
	s.version++

	return nil
}

// Get returns the reading stored for ph, or ErrNotFound.
func (s *Store) Get(ph float64) (int, error) {
	ph, err := normalizePH(ph)
	if err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, ok := s.points[ph]
	if !ok {
		return 0, pkgerrors.Wrapf(ErrNotFound, "pH %s", FormatPH(ph))
	}

	return raw, nil
}

// Len returns the number of points.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.points)
}

// Version changes every time the points change.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.version
}

// Snapshot returns a copy of the current points sorted by pH.
func (s *Store) Snapshot() Set {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := Set{
		Points:  make([]Point, 0, len(s.points)),
		Version: s.version,
	}
	for ph, raw := range s.points {
		set.Points = append(set.Points, Point{PH: ph, Raw: raw})
	}
	sort.Slice(set.Points, func(i, j int) bool {
		return set.Points[i].PH < set.Points[j].PH
	})

	return set
}

// Load replaces all points with the content of the calibration file at path.
// Loading is all-or-nothing: on any error the current points are kept.
func (s *Store) Load(path string) error {
	b, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return &StorageError{Op: "read", Path: path, Err: err}
	}

	points, err := Decode(bytes.NewReader(b))
	if err != nil {
		return &StorageError{Op: "parse", Path: path, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.points = points
	s.version++

	logrus.WithFields(logrus.Fields{
		"path":   path,
		"points": len(points),
	}).Debug("calibrations loaded")

	return nil
}

// Save writes all points to path, replacing it atomically.
func (s *Store) Save(path string) error {
	var buf bytes.Buffer
	if err := Encode(&buf, s.Snapshot()); err != nil {
		return &StorageError{Op: "encode", Path: path, Err: err}
	}

	if err := atomicfile.WriteFile(s.fs, path, buf.Bytes(), 0644); err != nil {
		return &StorageError{Op: "write", Path: path, Err: err}
	}

	return nil
}

// Encode writes set as an indented JSON object with sorted keys.
func Encode(w io.Writer, set Set) error {
	// encoding/json sorts map keys, which is what we want on disk.
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(set.Map())
}

// Decode parses a calibration file. Every key must be a finite number, every
// value a non-negative integer, and no two keys may denote the same pH.
func Decode(r io.Reader) (map[float64]int, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(b)) == "" {
		return nil, pkgerrors.New("calibration file is empty")
	}

	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to unmarshal calibrations")
	}
	if raw == nil {
		return nil, pkgerrors.New("calibration file must contain a JSON object")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, pkgerrors.New("unexpected data after calibration object")
	}

	points := make(map[float64]int, len(raw))
	keys := make(map[float64]string, len(raw))
	for k, v := range raw {
		ph, err := ParsePH(k)
		if err != nil {
			return nil, err
		}
		if prev, ok := keys[ph]; ok {
			return nil, pkgerrors.Errorf("keys %q and %q denote the same pH", prev, k)
		}

		num, ok := v.(json.Number)
		if !ok {
			return nil, pkgerrors.Wrapf(ErrInvalidReading, "pH %s: %v is not a number", k, v)
		}
		n, err := num.Int64()
		if err != nil {
			return nil, pkgerrors.Wrapf(ErrInvalidReading, "pH %s: %s is not an integer", k, num)
		}
		if n < 0 || int64(int(n)) != n {
			return nil, pkgerrors.Wrapf(ErrInvalidReading, "pH %s: %d is out of range", k, n)
		}

		keys[ph] = k
		points[ph] = int(n)
	}

	return points, nil
}
