package daemon

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/minph/pkg/calibration"
	"github.com/charlie0129/minph/pkg/events"
	"github.com/charlie0129/minph/pkg/sensor"
	"github.com/charlie0129/minph/pkg/types"
)

// continuousWindow is how far back the recorder looks when checking for
// missed samples.
const continuousWindow = 30 * time.Second

// SampleRecorder records the last N samples of the sampling loop.
type SampleRecorder struct {
	MaxRecordCount int
	Samples        []types.Sample
	mu             *sync.Mutex
}

// NewSampleRecorder returns a new SampleRecorder.
func NewSampleRecorder(maxRecordCount int) *SampleRecorder {
	return &SampleRecorder{
		MaxRecordCount: maxRecordCount,
		Samples:        make([]types.Sample, 0),
		mu:             &sync.Mutex{},
	}
}

// Add appends s, dropping the oldest sample when full.
func (r *SampleRecorder) Add(s types.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Strip monotonic clock reading.
	s.Time = s.Time.Round(0)

	if len(r.Samples) >= r.MaxRecordCount {
		r.Samples = r.Samples[1:]
	}
	r.Samples = append(r.Samples, s)
}

// Clear removes all samples.
func (r *SampleRecorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Samples = make([]types.Sample, 0)
}

// Last returns up to n most recent samples, oldest first. n <= 0 means all.
func (r *SampleRecorder) Last(n int) []types.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 0 || n > len(r.Samples) {
		n = len(r.Samples)
	}

	out := make([]types.Sample, n)
	copy(out, r.Samples[len(r.Samples)-n:])
	return out
}

// Latest returns the most recent sample, if any.
func (r *SampleRecorder) Latest() (types.Sample, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.Samples) == 0 {
		return types.Sample{}, false
	}

	return r.Samples[len(r.Samples)-1], true
}

// ContinuousIn returns the number of continuous samples in the last duration.
// Two adjacent samples are continuous when they are less than
// interval+1 second apart.
func (r *SampleRecorder) ContinuousIn(last, interval time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	// The last sample must be within the interval.
	if len(r.Samples) > 0 && time.Since(r.Samples[len(r.Samples)-1].Time) >= interval+time.Second {
		return 0
	}

	count := 0
	for i := len(r.Samples) - 1; i >= 0; i-- {
		record := r.Samples[i].Time
		if time.Since(record) > last {
			break
		}

		theRecordAfter := record
		if i+1 < len(r.Samples) {
			theRecordAfter = r.Samples[i+1].Time
		}

		if theRecordAfter.Sub(record) >= interval+time.Second {
			break
		}
		count++
	}

	return count
}

// samplingLoop reads the sensor every SampleInterval until ctx is done.
// Errors are logged and recorded, never fatal.
func (d *Daemon) samplingLoop(ctx context.Context) {
	interval := d.conf.SampleInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		d.sampleOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// The interval may change on SIGHUP.
		if i, ok := d.updateInterval(interval); ok {
			interval = i
			ticker.Reset(interval)
		}
	}
}

// updateInterval returns the configured sample interval and whether it
// differs from interval. Samples taken at the old rate are dropped so the
// missed-sample check starts over.
func (d *Daemon) updateInterval(interval time.Duration) (time.Duration, bool) {
	i := d.conf.SampleInterval()
	if i == interval {
		return interval, false
	}

	logrus.Infof("sample interval changed from %s to %s", interval, i)
	d.recorder.Clear()

	return i, true
}

func (d *Daemon) sampleOnce(ctx context.Context) types.Sample {
	s := types.Sample{Time: time.Now()}

	raw, err := sensor.ReadWithTimeout(ctx, d.reader, d.conf.ReadTimeout())
	if err != nil {
		if ctx.Err() != nil {
			return s
		}
		s.Error = err.Error()
		logrus.Errorf("failed to read sensor: %v", err)
	} else {
		s.Raw = raw
		ph, err := d.calibrator.Convert(raw)
		switch {
		case err == nil:
			s.PH = &ph
		case errors.Is(err, calibration.ErrNotCalibrated):
			s.Error = err.Error()
		default:
			s.Error = err.Error()
			logrus.Errorf("failed to convert reading %d: %v", raw, err)
		}
	}

	d.checkMissedSamples()
	d.recorder.Add(s)
	d.printStatus(s)

	d.hub.Publish(events.Sample, events.SampleEvent{
		Raw:   s.Raw,
		PH:    s.PH,
		Error: s.Error,
		Ts:    s.Time.Unix(),
	})

	return s
}

func (d *Daemon) checkMissedSamples() bool {
	interval := d.conf.SampleInterval()
	expected := int(continuousWindow / interval)
	if expected < 2 {
		return false
	}

	count := d.recorder.ContinuousIn(continuousWindow, interval)
	// Not enough history yet after startup.
	if len(d.recorder.Last(expected)) < expected {
		return false
	}

	if count < expected-1 {
		logrus.WithFields(logrus.Fields{
			"sampleCount":         count,
			"expectedSampleCount": expected,
		}).Infof("possibly missed samples")
		return true
	}
	return false
}

type loopStatus struct {
	raw   int
	ph    float64
	calib bool
	err   string
}

func (d *Daemon) printStatus(s types.Sample) {
	currentStatus := loopStatus{
		raw:   s.Raw,
		calib: s.PH != nil,
		err:   s.Error,
	}
	if s.PH != nil {
		currentStatus.ph = *s.PH
	}

	fields := logrus.Fields{
		"raw":        s.Raw,
		"calibrated": currentStatus.calib,
	}
	if s.PH != nil {
		fields["ph"] = *s.PH
	}
	if s.Error != "" {
		fields["error"] = s.Error
	}

	defer func() { d.lastPrintTime = time.Now() }()

	// Skip printing if nothing changed since the last sample.
	if time.Since(d.lastPrintTime) < d.conf.SampleInterval()+time.Second && d.lastStatus == currentStatus {
		logrus.WithFields(fields).Trace("sampling loop status")
		return
	}

	logrus.WithFields(fields).Debug("sampling loop status")

	d.lastStatus = currentStatus
}
