package scope

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"

	"github.com/itohio/godaq/pkg/sample"
)

var (
	gridColor  = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	labelColor = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	textColor  = color.RGBA{R: 200, G: 200, B: 200, A: 255}

	// Trace colors, cycled per signal
	traceColors = []color.RGBA{
		{R: 255, G: 165, B: 0, A: 255},   // Orange
		{R: 100, G: 200, B: 255, A: 255}, // Light blue
		{R: 120, G: 220, B: 120, A: 255}, // Green
		{R: 240, G: 100, B: 160, A: 255}, // Pink
		{R: 230, G: 230, B: 90, A: 255},  // Yellow
		{R: 170, G: 130, B: 255, A: 255}, // Violet
	}
)

const (
	laneGap   = 8
	laneLines = 4
	timeLines = 10
)

// scopeRenderer renders the scope widget.
type scopeRenderer struct {
	scope *ScopeWidget

	// Background
	grid *canvas.Rectangle

	// Objects list for Fyne
	objects []fyne.CanvasObject

	// Track last size to detect changes
	lastSize fyne.Size
}

// MinSize returns the minimum size of the widget.
func (r *scopeRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 300)
}

// Layout arranges the widget components.
func (r *scopeRenderer) Layout(size fyne.Size) {
	// Background fills entire widget
	r.grid.Resize(size)

	if r.lastSize.Width != size.Width || r.lastSize.Height != size.Height {
		r.lastSize = size
		// Size changed, redraw with new dimensions
		r.scope.BaseWidget.Refresh()
	}
}

// Refresh updates the widget display.
func (r *scopeRenderer) Refresh() {
	r.scope.mu.RLock()
	series := r.scope.series
	ranges := r.scope.ranges
	x := r.scope.x
	status := r.scope.status
	r.scope.mu.RUnlock()

	size := r.scope.Size()
	if size.Width == 0 || size.Height == 0 {
		return
	}

	// Clear old objects (but keep grid)
	r.objects = []fyne.CanvasObject{r.grid}

	// Calculate margins
	marginLeft := float32(70.0)
	marginRight := float32(20.0)
	marginTop := float32(24.0)
	marginBottom := float32(30.0)

	plotWidth := size.Width - marginLeft - marginRight
	plotHeight := size.Height - marginTop - marginBottom
	plotX := marginLeft
	plotY := marginTop
	if plotWidth <= 0 || plotHeight <= 0 {
		return
	}

	r.drawTimeGrid(plotX, plotY, plotWidth, plotHeight, x)

	lanes := len(series)
	if lanes == 0 {
		lanes = 1
		r.drawLaneGrid(plotX, plotY, plotWidth, plotHeight, span{min: 0, max: 1}, "")
	}
	for i, s := range series {
		top, height := lane(i, lanes, plotHeight, laneGap)
		r.drawLaneGrid(plotX, plotY+top, plotWidth, height, ranges[i], s.Unit)
		r.drawTrace(plotX, plotY+top, plotWidth, height, s, ranges[i], x, traceColors[i%len(traceColors)])
		r.drawLegend(plotX, plotY+top, s, traceColors[i%len(traceColors)])
	}

	if status != "" {
		text := canvas.NewText(status, textColor)
		text.TextSize = 11
		text.Move(fyne.NewPos(plotX, 4))
		r.objects = append(r.objects, text)
	}
}

// drawTimeGrid draws the vertical grid lines shared by all lanes.
func (r *scopeRenderer) drawTimeGrid(plotX, plotY, plotWidth, plotHeight float32, x span) {
	for i := range timeLines + 1 {
		px := plotX + float32(i)*plotWidth/float32(timeLines)
		line := canvas.NewLine(gridColor)
		line.Position1 = fyne.NewPos(px, plotY)
		line.Position2 = fyne.NewPos(px, plotY+plotHeight)
		line.StrokeWidth = 1
		r.objects = append(r.objects, line)

		t := x.min + float64(i)*(x.max-x.min)/float64(timeLines)
		text := canvas.NewText(formatSeconds(t), labelColor)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignCenter
		text.Move(fyne.NewPos(px-20, plotY+plotHeight+5))
		r.objects = append(r.objects, text)
	}
}

// drawLaneGrid draws the horizontal grid lines and value labels of one lane.
func (r *scopeRenderer) drawLaneGrid(plotX, top, plotWidth, height float32, y span, unit string) {
	for i := range laneLines + 1 {
		py := top + float32(i)*height/float32(laneLines)
		line := canvas.NewLine(gridColor)
		line.Position1 = fyne.NewPos(plotX, py)
		line.Position2 = fyne.NewPos(plotX+plotWidth, py)
		line.StrokeWidth = 1
		r.objects = append(r.objects, line)

		if i%2 != 0 {
			continue
		}
		value := y.max - float64(i)*(y.max-y.min)/float64(laneLines)
		text := canvas.NewText(formatValue(value, unit), labelColor)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignTrailing
		text.Move(fyne.NewPos(plotX-5, py-6))
		r.objects = append(r.objects, text)
	}
}

// drawTrace draws one series as connected line segments.
func (r *scopeRenderer) drawTrace(plotX, top, plotWidth, height float32, s sample.Series, y, x span, c color.RGBA) {
	n := min(len(s.Times), len(s.Values))
	if n < 2 {
		return
	}

	prev := fyne.NewPos(plotX+x.project(s.Times[0], plotWidth), top+height-y.project(s.Values[0], height))
	for i := 1; i < n; i++ {
		if s.Times[i] < x.min {
			prev = fyne.NewPos(plotX+x.project(s.Times[i], plotWidth), top+height-y.project(s.Values[i], height))
			continue
		}
		p := fyne.NewPos(plotX+x.project(s.Times[i], plotWidth), top+height-y.project(s.Values[i], height))
		line := canvas.NewLine(c)
		line.Position1 = prev
		line.Position2 = p
		line.StrokeWidth = 1.5
		r.objects = append(r.objects, line)
		prev = p
	}
}

func (r *scopeRenderer) drawLegend(plotX, top float32, s sample.Series, c color.RGBA) {
	text := canvas.NewText(s.Label, c)
	text.TextSize = 11
	text.TextStyle.Bold = true
	text.Move(fyne.NewPos(plotX+6, top+2))
	r.objects = append(r.objects, text)
}

// Objects returns all canvas objects for rendering.
func (r *scopeRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

// Destroy cleans up resources.
func (r *scopeRenderer) Destroy() {
	// Cleanup handled by Fyne
}
