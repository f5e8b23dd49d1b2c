package config

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/charlie0129/minph/pkg/sensor"
	"github.com/charlie0129/minph/pkg/utils/atomicfile"
	"github.com/charlie0129/minph/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		CalibrationFile:      ptr.To("/etc/minph/ph.json"),
		Driver:               ptr.To(sensor.DriverI2CDev),
		Bus:                  ptr.To(""),
		Address:              ptr.To(sensor.DefaultAddress),
		ADCBits:              ptr.To(12),
		SampleIntervalMillis: ptr.To(1000),
		ReadTimeoutMillis:    ptr.To(500),
		AutoFit:              ptr.To(true),
		AllowNonRootAccess:   ptr.To(false),
		// MinipH board: 4.096 V reference, first op-amp stage gain 5.25.
		ReferenceVoltage: ptr.To(4.096),
		AmplifierGain:    ptr.To(5.25),
	}

	validate = validator.New()
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	fs       afero.Fs
	filepath string
}

func NewFile(configPath string) (*File, error) {
	return NewFileWithFs(afero.NewOsFs(), configPath)
}

func NewFileWithFs(fs afero.Fs, configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		fs:       fs,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		fs:       afero.NewOsFs(),
		filepath: configPath,
	}

	return f
}

type RawFileConfig struct {
	CalibrationFile      *string  `json:"calibrationFile,omitempty" validate:"omitempty,min=1"`
	Driver               *string  `json:"driver,omitempty" validate:"omitempty,oneof=i2cdev ch347 mock"`
	Bus                  *string  `json:"bus,omitempty"`
	Address              *int     `json:"address,omitempty" validate:"omitempty,min=3,max=119"`
	ADCBits              *int     `json:"adcBits,omitempty" validate:"omitempty,min=8,max=16"`
	SampleIntervalMillis *int     `json:"sampleIntervalMillis,omitempty" validate:"omitempty,min=10"`
	ReadTimeoutMillis    *int     `json:"readTimeoutMillis,omitempty" validate:"omitempty,min=1"`
	AutoFit              *bool    `json:"autoFit,omitempty"`
	AllowNonRootAccess   *bool    `json:"allowNonRootAccess,omitempty"`
	ReferenceVoltage     *float64 `json:"referenceVoltage,omitempty" validate:"omitempty,gt=0"`
	AmplifierGain        *float64 `json:"amplifierGain,omitempty" validate:"omitempty,gt=0"`
}

// Validate checks the values that are set.
func (c *RawFileConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return pkgerrors.Wrap(err, "invalid config")
	}
	return nil
}

func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	rawConfig := &RawFileConfig{
		CalibrationFile:      ptr.To(c.CalibrationFile()),
		Driver:               ptr.To(c.Driver()),
		Bus:                  ptr.To(c.Bus()),
		Address:              ptr.To(int(c.Address())),
		ADCBits:              ptr.To(c.ADCBits()),
		SampleIntervalMillis: ptr.To(int(c.SampleInterval() / time.Millisecond)),
		ReadTimeoutMillis:    ptr.To(int(c.ReadTimeout() / time.Millisecond)),
		AutoFit:              ptr.To(c.AutoFit()),
		AllowNonRootAccess:   ptr.To(c.AllowNonRootAccess()),
		ReferenceVoltage:     ptr.To(c.ReferenceVoltage()),
		AmplifierGain:        ptr.To(c.AmplifierGain()),
	}

	return rawConfig, nil
}

// get reads one field under the read lock, falling back to the default.
func get[T any](f *File, field func(*RawFileConfig) *T) T {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if v := field(f.c); v != nil {
		return *v
	}
	return *field(defaultFileConfig)
}

func (f *File) CalibrationFile() string {
	return get(f, func(c *RawFileConfig) *string { return c.CalibrationFile })
}

func (f *File) Driver() string {
	return get(f, func(c *RawFileConfig) *string { return c.Driver })
}

func (f *File) Bus() string {
	return get(f, func(c *RawFileConfig) *string { return c.Bus })
}

func (f *File) Address() uint16 {
	return uint16(get(f, func(c *RawFileConfig) *int { return c.Address }))
}

func (f *File) ADCBits() int {
	return get(f, func(c *RawFileConfig) *int { return c.ADCBits })
}

func (f *File) SampleInterval() time.Duration {
	return time.Duration(get(f, func(c *RawFileConfig) *int { return c.SampleIntervalMillis })) * time.Millisecond
}

func (f *File) ReadTimeout() time.Duration {
	return time.Duration(get(f, func(c *RawFileConfig) *int { return c.ReadTimeoutMillis })) * time.Millisecond
}

func (f *File) AutoFit() bool {
	return get(f, func(c *RawFileConfig) *bool { return c.AutoFit })
}

func (f *File) AllowNonRootAccess() bool {
	return get(f, func(c *RawFileConfig) *bool { return c.AllowNonRootAccess })
}

func (f *File) ReferenceVoltage() float64 {
	return get(f, func(c *RawFileConfig) *float64 { return c.ReferenceVoltage })
}

func (f *File) AmplifierGain() float64 {
	return get(f, func(c *RawFileConfig) *float64 { return c.AmplifierGain })
}

func (f *File) SetCalibrationFile(p string) {
	if f.c == nil {
		panic("config is nil")
	}
	if p == "" {
		panic("calibration file path must not be empty")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.CalibrationFile = &p
}

func (f *File) SetDriver(d string) {
	if f.c == nil {
		panic("config is nil")
	}

	switch d {
	case sensor.DriverI2CDev, sensor.DriverCH347, sensor.DriverMock:
	default:
		panic("unknown sensor driver " + d)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.Driver = &d
}

func (f *File) SetAllowNonRootAccess(b bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.c.AllowNonRootAccess = &b
}

func (f *File) SetAutoFit(b bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.c.AutoFit = &b
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := afero.ReadFile(f.fs, f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		// If the file is empty, return the empty config.
		// Do not make f.c a nil.
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	if err := conf.Validate(); err != nil {
		return pkgerrors.Wrapf(err, "config file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	err := enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	err = atomicfile.WriteFile(f.fs, f.filepath, buf.Bytes(), 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to save config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	return logrus.Fields{
		"calibrationFile":    f.CalibrationFile(),
		"driver":             f.Driver(),
		"bus":                f.Bus(),
		"address":            f.Address(),
		"adcBits":            f.ADCBits(),
		"sampleInterval":     f.SampleInterval().String(),
		"readTimeout":        f.ReadTimeout().String(),
		"autoFit":            f.AutoFit(),
		"allowNonRootAccess": f.AllowNonRootAccess(),
		"referenceVoltage":   f.ReferenceVoltage(),
		"amplifierGain":      f.AmplifierGain(),
	}
}
