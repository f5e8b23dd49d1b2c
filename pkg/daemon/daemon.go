package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/minph/pkg/calibration"
	"github.com/charlie0129/minph/pkg/config"
	"github.com/charlie0129/minph/pkg/events"
	"github.com/charlie0129/minph/pkg/linear"
	"github.com/charlie0129/minph/pkg/sensor"
)

// Daemon owns the calibration store, the calibrator and the sensor of one
// probe, and serves them over HTTP.
type Daemon struct {
	conf       config.Config
	store      *calibration.Store
	calibrator *linear.Calibrator
	reader     sensor.Reader
	hub        *events.EventHub
	recorder   *SampleRecorder

	// opened is what the reader and calibrator were built with.
	opened sensorSettings

	// mu serializes calibration changes: mutate, save, refit.
	mu *sync.Mutex

	lastStatus    loopStatus
	lastPrintTime time.Time
}

// New returns a Daemon. It does not fit or start sampling.
func New(conf config.Config, store *calibration.Store, reader sensor.Reader) *Daemon {
	return &Daemon{
		conf:       conf,
		store:      store,
		calibrator: linear.NewCalibrator(linear.MaxReadingForBits(conf.ADCBits())),
		reader:     reader,
		hub:        events.NewEventHub(),
		recorder:   NewSampleRecorder(600),
		opened:     sensorSettingsOf(conf),
		mu:         &sync.Mutex{},
	}
}

// loadCalibrations loads the calibration file at startup. A missing file
// starts the daemon with no points so the probe can be calibrated.
func loadCalibrations(store *calibration.Store, path string) error {
	err := store.Load(path)
	if err == nil {
		logrus.WithFields(logrus.Fields{
			"path":   path,
			"points": store.Len(),
		}).Info("calibrations loaded")
		return nil
	}
	if errors.Is(err, os.ErrNotExist) {
		logrus.Warnf("calibration file %s does not exist, starting uncalibrated", path)
		return nil
	}
	return err
}

// initialFit fits the loaded points. Failure is not fatal: the daemon keeps
// serving raw readings until enough points are added.
func (d *Daemon) initialFit() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.fitLocked(); err != nil {
		logrus.Warnf("daemon starts uncalibrated: %v", err)
	}
}

// sensorSettings are the config fields used only when the sensor is opened.
type sensorSettings struct {
	driver  string
	bus     string
	address uint16
	adcBits int
}

func sensorSettingsOf(c config.Config) sensorSettings {
	return sensorSettings{
		driver:  c.Driver(),
		bus:     c.Bus(),
		address: c.Address(),
		adcBits: c.ADCBits(),
	}
}

// changed returns the config keys that differ between s and o.
func (s sensorSettings) changed(o sensorSettings) []string {
	var keys []string
	if s.driver != o.driver {
		keys = append(keys, "driver")
	}
	if s.bus != o.bus {
		keys = append(keys, "bus")
	}
	if s.address != o.address {
		keys = append(keys, "address")
	}
	if s.adcBits != o.adcBits {
		keys = append(keys, "adcBits")
	}
	return keys
}

// reloadConfig rereads the config file, then the calibrations. The sensor
// and the calibrator keep the settings they were opened with, so changed
// sensor settings are returned and logged as needing a restart.
func (d *Daemon) reloadConfig() ([]string, error) {
	if err := d.conf.Load(); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to reload config")
	}
	logrus.WithFields(d.conf.LogrusFields()).Infof("config reloaded")

	restart := d.opened.changed(sensorSettingsOf(d.conf))
	if len(restart) > 0 {
		logrus.WithField("fields", restart).Warn("sensor settings changed, restart the daemon to apply them")
	}

	if _, err := d.reload(); err != nil {
		return restart, pkgerrors.Wrap(err, "failed to reload calibrations")
	}

	return restart, nil
}

func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	conf, err := config.NewFile(configPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	store := calibration.NewStore()
	if err := loadCalibrations(store, conf.CalibrationFile()); err != nil {
		return pkgerrors.Wrap(err, "failed to load calibrations during startup")
	}

	reader, err := sensor.Open(sensor.Options{
		Driver:  conf.Driver(),
		Bus:     conf.Bus(),
		Address: conf.Address(),
		Bits:    conf.ADCBits(),
	})
	if err != nil {
		return pkgerrors.Wrap(err, "failed to open sensor")
	}

	d := New(conf, store, reader)
	d.initialFit()

	router := d.setupRoutes()

	// Receive SIGHUP to reload config and calibrations
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			if _, err := d.reloadConfig(); err != nil {
				logrus.Error(err)
			}
		}
	}()

	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// A socket left behind by a crashed daemon would make Listen fail.
	if err := os.Remove(unixSocketPath); err != nil && !os.IsNotExist(err) {
		return pkgerrors.Wrapf(err, "failed to remove stale socket %s", unixSocketPath)
	}

	// Create the socket to listen on:
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		logrus.Fatal(err)
	}

	if conf.AllowNonRootAccess() || allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		err = os.Chmod(unixSocketPath, 0777)
		if err != nil {
			logrus.Fatal(err)
		}
	}

	// Serve HTTP on unix socket
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	ctx, stopSampling := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		logrus.Debugln("sampling loop starts")
		d.samplingLoop(ctx)
		logrus.Debugln("sampling loop stopped")
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM:
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	logrus.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(shutdownCtx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	cancel()

	logrus.Info("stopping sampling loop")
	stopSampling()
	<-loopDone

	logrus.Info("closing sensor")
	err = reader.Close()
	if err != nil {
		logrus.Errorf("failed to close sensor: %v", err)
	}

	logrus.Info("exiting")
	return nil
}
