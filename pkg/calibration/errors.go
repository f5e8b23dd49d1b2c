package calibration

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidReading is returned when a raw reading is negative or not a number.
	ErrInvalidReading = errors.New("invalid raw reading")

	// ErrInvalidPH is returned when a pH value is NaN or infinite.
	ErrInvalidPH = errors.New("invalid pH value")

	// ErrNotFound is returned when no calibration point exists for a pH value.
	ErrNotFound = errors.New("calibration point not found")

	// ErrStorage is matched by every StorageError.
	ErrStorage = errors.New("calibration storage error")

	// ErrDegenerateCalibration is returned when a fit is attempted with fewer
	// than 2 points or with all raw readings equal.
	ErrDegenerateCalibration = errors.New("degenerate calibration")

	// ErrNotCalibrated is returned when a conversion is attempted before any
	// successful fit.
	ErrNotCalibrated = errors.New("not calibrated")
)

// StorageError reports a failed load or save of a calibration file.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("failed to %s calibrations %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrStorage) hold for any StorageError.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }
