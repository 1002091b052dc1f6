package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, "mbed", cfg.Device.Manufacturer)
	assert.Equal(t, 115200, cfg.Device.BaudRate)
	assert.Equal(t, 100, cfg.Acquisition.SamplingFreq)
	assert.Equal(t, ".", cfg.Recording.DataPath)
	assert.Equal(t, 5, cfg.Recording.SavingPeriod)
	assert.Len(t, cfg.Signals, 3)
	assert.Equal(t, "Signal 1", cfg.Signals[0].Label)
	assert.Equal(t, -32768, cfg.Signals[0].DigitalMin)
	assert.Equal(t, 32767, cfg.Signals[0].DigitalMax)
	assert.Equal(t, 10, cfg.Display.WindowSeconds)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, "mbed", cfg.Device.Manufacturer)
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
device:
  manufacturer: "Arduino"
  baud_rate: 57600

acquisition:
  sampling_freq: 250

recording:
  data_path: "/tmp"
  saving_period_s: 2
  experiment_id: "EXP1"

subject:
  code: "ID2020"
  sex: "F"

signals:
  - label: "EMG"
    physical_dim: "mV"
    physical_min: -5
    physical_max: 5
    digital_min: 0
    digital_max: 4095
  - label: "ECG"
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)

	assert.Equal(t, "Arduino", cfg.Device.Manufacturer)
	assert.Equal(t, 57600, cfg.Device.BaudRate)
	assert.Equal(t, 250, cfg.Acquisition.SamplingFreq)
	assert.Equal(t, "/tmp", cfg.Recording.DataPath)
	assert.Equal(t, 2, cfg.Recording.SavingPeriod)
	assert.Equal(t, "EXP1", cfg.Recording.ExperimentID)
	assert.Equal(t, "ID2020", cfg.Subject.Code)
	require.Len(t, cfg.Signals, 2)
	assert.Equal(t, "EMG", cfg.Signals[0].Label)
	assert.Equal(t, 4095, cfg.Signals[0].DigitalMax)

	// Second signal only has a label; calibration comes from defaults
	assert.Equal(t, "ECG", cfg.Signals[1].Label)
	assert.Equal(t, -32768, cfg.Signals[1].DigitalMin)
	assert.Equal(t, float64(1), cfg.Signals[1].PhysicalMax)

	assert.Equal(t, 500, cfg.SamplesPerRecord())
	assert.Equal(t, 2, cfg.NumSignals())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.WriteString("invalid: yaml: content: [")
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_PartialYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.WriteString("device:\n  port: \"/dev/ttyACM0\"\n")
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyACM0", cfg.Device.Port)
	assert.Equal(t, "mbed", cfg.Device.Manufacturer) // default
	assert.Equal(t, 100, cfg.Acquisition.SamplingFreq) // default
	assert.Len(t, cfg.Signals, 3)                       // default
}

func TestSave(t *testing.T) {
	cfg := Default()
	cfg.Device.Port = "/dev/ttyUSB0"
	cfg.Acquisition.SamplingFreq = 500

	filename := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, cfg.Save(filename))

	loaded, err := Load(filename)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", loaded.Device.Port)
	assert.Equal(t, 500, loaded.Acquisition.SamplingFreq)
	assert.Equal(t, cfg.Signals, loaded.Signals)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"lowest baud", func(c *Config) { c.Device.BaudRate = 9600 }, ""},
		{"unsupported baud", func(c *Config) { c.Device.BaudRate = 250000 }, "baud rate 250000"},
		{"zero frequency", func(c *Config) { c.Acquisition.SamplingFreq = 0 }, "sampling frequency"},
		{"max frequency", func(c *Config) { c.Acquisition.SamplingFreq = 999 }, ""},
		{"four digit frequency", func(c *Config) { c.Acquisition.SamplingFreq = 1000 }, "sampling frequency"},
		{"zero saving period", func(c *Config) { c.Recording.SavingPeriod = 0 }, "saving period"},
		{"no signals", func(c *Config) { c.Signals = nil }, "at least one signal"},
		{"inverted digital range", func(c *Config) { c.Signals[1].DigitalMin = 10; c.Signals[1].DigitalMax = 10 }, "signal 2"},
		{"flat physical range", func(c *Config) { c.Signals[0].PhysicalMax = c.Signals[0].PhysicalMin }, "physical min equals max"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestResolveDataPath(t *testing.T) {
	cfg := Default()

	wd, err := os.Getwd()
	require.NoError(t, err)
	got, err := cfg.ResolveDataPath()
	require.NoError(t, err)
	assert.Equal(t, wd, got)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	cfg.Recording.DataPath = ""
	got, err = cfg.ResolveDataPath()
	require.NoError(t, err)
	assert.Equal(t, home, got)

	dir := filepath.Join(t.TempDir(), "recordings", "today")
	cfg.Recording.DataPath = dir
	got, err = cfg.ResolveDataPath()
	require.NoError(t, err)
	assert.Equal(t, dir, got)
	assert.DirExists(t, dir)
}
