package types

import (
	"time"

	"github.com/charlie0129/minph/pkg/linear"
)

// Transfer is the current transfer function as reported by the daemon.
// Stale is set when calibration points changed after the fit.
type Transfer struct {
	linear.TransferFunction
	Stale bool `json:"stale"`
}

// Reading is one raw sample and, when calibrated, its pH.
type Reading struct {
	Raw  int       `json:"raw"`
	PH   *float64  `json:"ph,omitempty"`
	Time time.Time `json:"time"`
}

// Probe is the probe health derived from the current fit.
type Probe struct {
	linear.ProbeHealth
	Params linear.ProbeParams `json:"params"`
}

// Sample is one iteration of the daemon's sampling loop.
type Sample struct {
	Time  time.Time `json:"time"`
	Raw   int       `json:"raw"`
	PH    *float64  `json:"ph,omitempty"`
	Error string    `json:"error,omitempty"`
}
