package scope

import (
	"image/color"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/godaq/pkg/config"
	"github.com/itohio/godaq/pkg/sample"
)

// ScopeWidget is a custom Fyne widget that displays one trace per signal,
// each in its own lane, over a sliding time window.
type ScopeWidget struct {
	widget.BaseWidget

	// Data (protected by mu)
	mu     sync.RWMutex
	series []sample.Series // downsampled for display
	ranges []span
	x      span
	status string

	// Display settings
	horizon          float64
	maxDisplayPoints int
}

// New creates a new ScopeWidget instance.
func New(cfg *config.Config) *ScopeWidget {
	s := &ScopeWidget{
		horizon:          float64(cfg.Display.WindowSeconds),
		maxDisplayPoints: cfg.Display.MaxPoints,
	}
	s.x = timeSpan(nil, s.horizon)
	s.ExtendBaseWidget(s)
	// Trigger initial refresh to display empty scope
	s.Refresh()
	return s
}

// SetHorizon sets the displayed time span in seconds.
func (s *ScopeWidget) SetHorizon(seconds int) {
	s.mu.Lock()
	s.horizon = float64(seconds)
	s.mu.Unlock()
}

// SetStatus sets the text shown in the top left corner.
func (s *ScopeWidget) SetStatus(text string) {
	s.mu.Lock()
	s.status = text
	s.mu.Unlock()
	s.Refresh()
}

// UpdateData replaces the displayed series.
// This should be called from the UI goroutine, e.g. using fyne.Do().
func (s *ScopeWidget) UpdateData(series []sample.Series) {
	s.mu.Lock()

	s.series = s.series[:0]
	s.ranges = s.ranges[:0]
	for _, ser := range series {
		d := sample.DownsampleSeries(ser, s.maxDisplayPoints)
		s.series = append(s.series, d)
		s.ranges = append(s.ranges, valueSpan(d.Values))
	}
	var times []float64
	if len(series) > 0 {
		times = series[0].Times
	}
	s.x = timeSpan(times, s.horizon)

	s.mu.Unlock()

	// Refresh the widget (must be outside lock to avoid potential deadlock)
	s.Refresh()
}

// Clear removes all traces.
func (s *ScopeWidget) Clear() {
	s.UpdateData(nil)
}

// CreateRenderer creates the widget renderer.
func (s *ScopeWidget) CreateRenderer() fyne.WidgetRenderer {
	grid := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255}) // Dark background
	return &scopeRenderer{
		scope:    s,
		grid:     grid,
		objects:  []fyne.CanvasObject{grid},
		lastSize: fyne.Size{Width: 0, Height: 0},
	}
}
