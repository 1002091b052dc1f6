package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// BaudRates lists the serial speeds the MCU firmware accepts.
var BaudRates = []int{115200, 57600, 38400, 19200, 14400, 9600}

const (
	// MaxSamplingFreq is bounded by the 3-digit field of the configuration command.
	MaxSamplingFreq = 999
	// DefaultManufacturer is the tag reported by mbed boards.
	DefaultManufacturer = "mbed"
)

// Config represents the application configuration.
type Config struct {
	Device      DeviceConfig      `yaml:"device"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Recording   RecordingConfig   `yaml:"recording"`
	Subject     SubjectConfig     `yaml:"subject"`
	Signals     []SignalConfig    `yaml:"signals"`
	Display     DisplayConfig     `yaml:"display"`
	Mock        MockConfig        `yaml:"mock"`
}

// DeviceConfig contains serial link configuration.
type DeviceConfig struct {
	Manufacturer string `yaml:"manufacturer"` // Matched against product, VID or serial number
	Port         string `yaml:"port"`         // Explicit port, skips discovery when set
	BaudRate     int    `yaml:"baud_rate"`
}

// AcquisitionConfig contains sampling parameters shared by all signals.
type AcquisitionConfig struct {
	SamplingFreq int `yaml:"sampling_freq"` // Hz, 1..999
}

// RecordingConfig contains EDF output parameters.
type RecordingConfig struct {
	DataPath       string `yaml:"data_path"`
	SavingPeriod   int    `yaml:"saving_period_s"` // Data record duration in seconds
	ExperimentID   string `yaml:"experiment_id"`
	InvestigatorID string `yaml:"investigator_id"`
	EquipmentCode  string `yaml:"equipment_code"`
}

// SubjectConfig identifies the recorded subject.
type SubjectConfig struct {
	Code      string `yaml:"code"`
	Sex       string `yaml:"sex"`
	Birthdate string `yaml:"birthdate"` // dd-MMM-yyyy
	Name      string `yaml:"name"`
}

// SignalConfig describes one acquired channel and its calibration.
type SignalConfig struct {
	Label          string  `yaml:"label"`
	TransducerType string  `yaml:"transducer_type"`
	PhysicalDim    string  `yaml:"physical_dim"`
	PhysicalMin    float64 `yaml:"physical_min"`
	PhysicalMax    float64 `yaml:"physical_max"`
	DigitalMin     int     `yaml:"digital_min"`
	DigitalMax     int     `yaml:"digital_max"`
	Prefiltering   string  `yaml:"prefiltering"`
}

// DisplayConfig contains live view parameters.
type DisplayConfig struct {
	WindowSeconds int `yaml:"window_seconds"`
	MaxPoints     int `yaml:"max_points"`
}

// MockConfig contains synthetic device configuration.
type MockConfig struct {
	BufferSize int     `yaml:"buffer_size"` // Samples per packet, all channels; 0 sends every 0.2s like the firmware
	Amplitude  float64 `yaml:"amplitude"`   // Sine amplitude in ADC counts
	SignalHz   float64 `yaml:"signal_hz"`
	NoiseLevel float64 `yaml:"noise_level"` // ADC counts
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Manufacturer: DefaultManufacturer,
			BaudRate:     115200,
		},
		Acquisition: AcquisitionConfig{
			SamplingFreq: 100,
		},
		Recording: RecordingConfig{
			DataPath:     ".",
			SavingPeriod: 5,
		},
		Subject: SubjectConfig{
			Code: "X",
		},
		Signals: defaultSignals(3),
		Display: DisplayConfig{
			WindowSeconds: 10,
			MaxPoints:     1000,
		},
		Mock: MockConfig{
			Amplitude:  1000,
			SignalHz:   1,
			NoiseLevel: 20,
		},
	}
}

func defaultSignals(n int) []SignalConfig {
	signals := make([]SignalConfig, n)
	for i := range signals {
		signals[i] = SignalConfig{
			Label:       fmt.Sprintf("Signal %d", i+1),
			PhysicalMin: -1,
			PhysicalMax: 1,
			DigitalMin:  -32768,
			DigitalMax:  32767,
		}
	}
	return signals
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// NumSignals returns the number of acquired channels.
func (c *Config) NumSignals() int {
	return len(c.Signals)
}

// SamplesPerRecord returns the number of samples per signal in one EDF data record.
func (c *Config) SamplesPerRecord() int {
	return c.Recording.SavingPeriod * c.Acquisition.SamplingFreq
}

// Validate checks the constraints the MCU protocol and the EDF format impose.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains(BaudRates, c.Device.BaudRate) {
		errs = append(errs, fmt.Errorf("baud rate %d is not supported", c.Device.BaudRate))
	}
	if c.Acquisition.SamplingFreq < 1 || c.Acquisition.SamplingFreq > MaxSamplingFreq {
		errs = append(errs, fmt.Errorf("sampling frequency %d Hz out of range 1..%d", c.Acquisition.SamplingFreq, MaxSamplingFreq))
	}
	if c.Recording.SavingPeriod < 1 {
		errs = append(errs, fmt.Errorf("saving period must be at least 1s, got %d", c.Recording.SavingPeriod))
	}
	if len(c.Signals) == 0 {
		errs = append(errs, errors.New("at least one signal is required"))
	}
	for i, s := range c.Signals {
		if s.DigitalMin >= s.DigitalMax {
			errs = append(errs, fmt.Errorf("signal %d (%s): digital min %d must be below max %d", i+1, s.Label, s.DigitalMin, s.DigitalMax))
		}
		if s.PhysicalMin == s.PhysicalMax {
			errs = append(errs, fmt.Errorf("signal %d (%s): physical min equals max", i+1, s.Label))
		}
	}

	return errors.Join(errs...)
}

// ResolveDataPath returns the directory recordings are written to.
// "." is the working directory, an empty path is the user's home and any
// other path is created if missing.
func (c *Config) ResolveDataPath() (string, error) {
	switch c.Recording.DataPath {
	case ".":
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get working directory: %w", err)
		}
		return wd, nil
	case "":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return home, nil
	}

	path := filepath.Clean(c.Recording.DataPath)
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", fmt.Errorf("failed to create data path %s: %w", path, err)
	}
	return path, nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Device.Manufacturer == "" {
		c.Device.Manufacturer = def.Device.Manufacturer
	}
	if c.Device.BaudRate == 0 {
		c.Device.BaudRate = def.Device.BaudRate
	}

	if c.Acquisition.SamplingFreq == 0 {
		c.Acquisition.SamplingFreq = def.Acquisition.SamplingFreq
	}

	if c.Recording.SavingPeriod == 0 {
		c.Recording.SavingPeriod = def.Recording.SavingPeriod
	}

	if len(c.Signals) == 0 {
		c.Signals = def.Signals
	}
	for i := range c.Signals {
		s := &c.Signals[i]
		if s.Label == "" {
			s.Label = fmt.Sprintf("Signal %d", i+1)
		}
		if s.DigitalMin == 0 && s.DigitalMax == 0 {
			s.DigitalMin = def.Signals[0].DigitalMin
			s.DigitalMax = def.Signals[0].DigitalMax
		}
		if s.PhysicalMin == 0 && s.PhysicalMax == 0 {
			s.PhysicalMin = def.Signals[0].PhysicalMin
			s.PhysicalMax = def.Signals[0].PhysicalMax
		}
	}

	if c.Display.WindowSeconds == 0 {
		c.Display.WindowSeconds = def.Display.WindowSeconds
	}
	if c.Display.MaxPoints == 0 {
		c.Display.MaxPoints = def.Display.MaxPoints
	}

	if c.Mock.SignalHz == 0 {
		c.Mock.SignalHz = def.Mock.SignalHz
	}
}
