// Package sample converts digital readings to physical units for display.
package sample

import (
	"github.com/itohio/godaq/pkg/config"
	"github.com/itohio/godaq/pkg/window"
)

// Calibration maps the digital range of a signal linearly onto its physical range.
type Calibration struct {
	Label  string
	Unit   string
	Gain   float64
	Offset float64
}

// NewCalibration creates the calibration of one signal.
func NewCalibration(s config.SignalConfig) Calibration {
	gain := 1.0
	if s.DigitalMax != s.DigitalMin {
		gain = (s.PhysicalMax - s.PhysicalMin) / float64(s.DigitalMax-s.DigitalMin)
	}
	return Calibration{
		Label:  s.Label,
		Unit:   s.PhysicalDim,
		Gain:   gain,
		Offset: s.PhysicalMin - gain*float64(s.DigitalMin),
	}
}

// Calibrations returns one calibration per configured signal.
func Calibrations(cfg *config.Config) []Calibration {
	cals := make([]Calibration, len(cfg.Signals))
	for i, s := range cfg.Signals {
		cals[i] = NewCalibration(s)
	}
	return cals
}

// Physical converts a digital reading.
func (c Calibration) Physical(digital uint16) float64 {
	return c.Gain*float64(digital) + c.Offset
}

// Series is one signal over time in physical units.
type Series struct {
	Label  string
	Unit   string
	Times  []float64 // seconds since streaming started
	Values []float64
}

// Convert splits a window snapshot into one series per signal. Signals
// without a calibration keep their digital values.
func Convert(snap window.Snapshot, cals []Calibration) []Series {
	series := make([]Series, snap.Channels)
	for ch := range series {
		cal := Calibration{Gain: 1}
		if ch < len(cals) {
			cal = cals[ch]
		}

		values := make([]float64, snap.Len())
		for i := range values {
			values[i] = cal.Physical(snap.Data[i*snap.Channels+ch])
		}
		series[ch] = Series{
			Label:  cal.Label,
			Unit:   cal.Unit,
			Times:  snap.Times,
			Values: values,
		}
	}
	return series
}
