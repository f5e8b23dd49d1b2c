package daemon

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/minph/pkg/calibration"
	"github.com/charlie0129/minph/pkg/events"
	"github.com/charlie0129/minph/pkg/linear"
	"github.com/charlie0129/minph/pkg/sensor"
)

// setPoint stores raw for ph and persists the store. If saving fails the
// in-memory change is rolled back, so memory and disk stay in step.
func (d *Daemon) setPoint(ph float64, raw int, action string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	path := d.conf.CalibrationFile()
	prev, prevErr := d.store.Get(ph)

	if err := d.store.Set(ph, raw); err != nil {
		return err
	}

	if err := d.store.Save(path); err != nil {
		if prevErr == nil {
			_ = d.store.Set(ph, prev)
		} else {
			_ = d.store.Delete(ph)
		}
		return err
	}

	logrus.WithFields(logrus.Fields{
		"ph":     calibration.FormatPH(ph),
		"raw":    raw,
		"action": action,
	}).Info("calibration point stored")

	d.publishChanged(action, ph, raw)
	d.autoFitLocked()

	return nil
}

// deletePoint removes ph and persists the store. Deleting an absent point
// succeeds without touching the file.
func (d *Daemon) deletePoint(ph float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev, err := d.store.Get(ph)
	if errors.Is(err, calibration.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := d.store.Delete(ph); err != nil {
		return err
	}

	if err := d.store.Save(d.conf.CalibrationFile()); err != nil {
		_ = d.store.Set(ph, prev)
		return err
	}

	logrus.WithField("ph", calibration.FormatPH(ph)).Info("calibration point deleted")

	d.publishChanged("delete", ph, prev)
	d.autoFitLocked()

	return nil
}

// capture reads the sensor and stores the reading for ph, like dipping the
// probe in a buffer and pressing calibrate.
func (d *Daemon) capture(ctx context.Context, ph float64) (int, error) {
	raw, err := sensor.ReadWithTimeout(ctx, d.reader, d.conf.ReadTimeout())
	if err != nil {
		return 0, err
	}

	if err := d.setPoint(ph, raw, "capture"); err != nil {
		return 0, err
	}

	return raw, nil
}

// fit refits the current points. On failure the previous fit stays in
// effect.
func (d *Daemon) fit() (linear.TransferFunction, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.fitLocked()
}

func (d *Daemon) fitLocked() (linear.TransferFunction, error) {
	set := d.store.Snapshot()

	tf, err := d.calibrator.Fit(set)
	if err != nil {
		d.hub.Publish(events.CalibrationFit, events.CalibrationFitEvent{
			Error: err.Error(),
			Ts:    time.Now().Unix(),
		})
		return tf, err
	}

	fields := logrus.Fields{
		"slope":     tf.Slope,
		"intercept": tf.Intercept,
		"rSquared":  tf.RSquared,
		"points":    tf.Points,
	}
	if len(tf.Warnings) > 0 {
		logrus.WithFields(fields).Warnf("calibration fitted with suspect data: %v", tf.Warnings)
	} else {
		logrus.WithFields(fields).Info("calibration fitted")
	}

	d.hub.Publish(events.CalibrationFit, events.CalibrationFitEvent{
		Slope:     tf.Slope,
		Intercept: tf.Intercept,
		RSquared:  tf.RSquared,
		Warnings:  tf.Warnings,
		Ts:        time.Now().Unix(),
	})

	return tf, nil
}

func (d *Daemon) autoFitLocked() {
	if !d.conf.AutoFit() {
		return
	}
	if _, err := d.fitLocked(); err != nil {
		if d.calibrator.Calibrated() {
			logrus.Warnf("refit failed, keeping previous transfer function: %v", err)
		} else {
			logrus.Warnf("refit failed, still uncalibrated: %v", err)
		}
	}
}

// reload replaces the points with the calibration file. The store is left
// untouched when the file cannot be loaded.
func (d *Daemon) reload() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	path := d.conf.CalibrationFile()
	if err := d.store.Load(path); err != nil {
		return 0, err
	}

	n := d.store.Len()
	logrus.WithFields(logrus.Fields{
		"path":   path,
		"points": n,
	}).Info("calibrations reloaded")

	d.publishChanged("reload", 0, 0)
	d.autoFitLocked()

	return n, nil
}

func (d *Daemon) publishChanged(action string, ph float64, raw int) {
	set := d.store.Snapshot()
	d.hub.Publish(events.CalibrationChanged, events.CalibrationChangedEvent{
		Action:  action,
		PH:      ph,
		Raw:     raw,
		Points:  set.Len(),
		Version: set.Version,
		Ts:      time.Now().Unix(),
	})
}
