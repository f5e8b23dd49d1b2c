package config

import (
	"time"

	"github.com/sirupsen/logrus"
)

type Config interface {
	CalibrationFile() string
	Driver() string
	Bus() string
	Address() uint16
	ADCBits() int
	SampleInterval() time.Duration
	ReadTimeout() time.Duration
	AutoFit() bool
	AllowNonRootAccess() bool
	ReferenceVoltage() float64
	AmplifierGain() float64

	SetCalibrationFile(string)
	SetDriver(string)
	SetAllowNonRootAccess(bool)
	SetAutoFit(bool)

	LogrusFields() logrus.Fields

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
