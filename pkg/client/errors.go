package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrDaemonNotRunning is returned when the daemon is not running
	ErrDaemonNotRunning = errors.New("daemon not running")

	// ErrPermissionDenied is returned when the user does not have permission to perform the requested action
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound is returned when 404 is returned from the daemon
	ErrNotFound = errors.New("404 not found")

	// ErrNotCalibrated is returned when the daemon has no transfer function yet
	ErrNotCalibrated = errors.New("not calibrated")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("got %d: %s", e.Code, e.Message())
}

// Message returns the daemon's error message. The daemon sends errors as
// JSON strings.
func (e *StatusError) Message() string {
	var msg string
	if err := json.Unmarshal([]byte(e.Body), &msg); err == nil {
		return msg
	}
	return e.Body
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	case ErrNotCalibrated:
		return e.Code == http.StatusConflict
	}
	return false
}
