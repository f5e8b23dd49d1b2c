package events

import "encoding/json"

// Event name constants
const (
	Sample             = "sample"
	CalibrationChanged = "calibration.changed"
	CalibrationFit     = "calibration.fit"
)

// Event is a generic SSE event from daemon.
type Event struct {
	ID   string          // SSE event id
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// SampleEvent is the typed payload for sample.
type SampleEvent struct {
	Raw   int      `json:"raw"`
	PH    *float64 `json:"ph,omitempty"`
	Error string   `json:"error,omitempty"`
	Ts    int64    `json:"ts"`
}

// CalibrationChangedEvent is the typed payload for calibration.changed.
type CalibrationChangedEvent struct {
	Action  string  `json:"action"` // set, delete, capture or reload
	PH      float64 `json:"ph,omitempty"`
	Raw     int     `json:"raw,omitempty"`
	Points  int     `json:"points"`
	Version uint64  `json:"version"`
	Ts      int64   `json:"ts"`
}

// CalibrationFitEvent is the typed payload for calibration.fit.
type CalibrationFitEvent struct {
	Slope     float64  `json:"slope"`
	Intercept float64  `json:"intercept"`
	RSquared  float64  `json:"rSquared"`
	Warnings  []string `json:"warnings,omitempty"`
	Error     string   `json:"error,omitempty"`
	Ts        int64    `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.SampleEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.Raw, payload.PH)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
