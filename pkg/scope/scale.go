package scope

import (
	"strconv"

	"github.com/chewxy/math32"
)

// span is a closed interval of an axis.
type span struct {
	min, max float64
}

// valueSpan returns the range of values with a 10% margin.
func valueSpan(values []float64) span {
	if len(values) == 0 {
		return span{min: 0, max: 1}
	}

	s := span{min: values[0], max: values[0]}
	for _, v := range values {
		if v < s.min {
			s.min = v
		}
		if v > s.max {
			s.max = v
		}
	}

	// Add 10% margin
	r := s.max - s.min
	if r == 0 {
		r = 1.0
	}
	margin := r * 0.1
	s.min -= margin
	s.max += margin
	return s
}

// timeSpan returns the horizon seconds ending at the last timestamp, starting
// at zero until the window has filled.
func timeSpan(times []float64, horizon float64) span {
	if horizon <= 0 {
		horizon = 1
	}
	if len(times) == 0 {
		return span{min: 0, max: horizon}
	}
	end := times[len(times)-1]
	if end < horizon {
		return span{min: 0, max: horizon}
	}
	return span{min: end - horizon, max: end}
}

// project maps v in s onto [0, length], clamped.
func (s span) project(v float64, length float32) float32 {
	d := float32(s.max - s.min)
	if d == 0 || math32.IsNaN(d) {
		return 0
	}
	p := float32(v-s.min) / d * length
	return math32.Max(0, math32.Min(length, p))
}

// lane returns the top and height of lane i of n in a plot of height h,
// leaving gap between lanes.
func lane(i, n int, h, gap float32) (float32, float32) {
	if n < 1 {
		return 0, h
	}
	height := math32.Max(0, (h-gap*float32(n-1))/float32(n))
	return float32(i) * (height + gap), height
}

func formatValue(v float64, unit string) string {
	s := strconv.FormatFloat(v, 'g', 4, 64)
	if unit != "" {
		s += " " + unit
	}
	return s
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64) + "s"
}
