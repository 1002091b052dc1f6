package main

import (
	"context"
	"fmt"
	"time"

	"fyne.io/fyne/v2"

	"github.com/itohio/godaq/pkg/acquire"
	"github.com/itohio/godaq/pkg/sample"
)

// updateInterval throttles scope updates to ~20 FPS.
const updateInterval = 50 * time.Millisecond

// updateLoop copies the display window into the scope widget until ctx is
// cancelled. Widgets are only touched on the UI goroutine via fyne.Do.
func (state *appState) updateLoop(ctx context.Context) {
	ticker := time.NewTicker(updateInterval)
	defer ticker.Stop()

	var (
		lastStatus acquire.Status
		wasActive  bool
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		st := state.acq().Status()
		if st.State != lastStatus.State || st.Recording != lastStatus.Recording || st.Fault != lastStatus.Fault {
			if st.Fault != nil && st.Fault != lastStatus.Fault {
				showError(state, st.Fault)
			}
			fyne.Do(func() { updateButtons(state) })
		}
		text := statusText(st)
		lastStatus = st

		snap, ok := state.acq().Snapshot()
		if !ok {
			if wasActive {
				wasActive = false
				fyne.Do(func() { state.scopeWidget.SetStatus(text) })
			}
			continue
		}
		wasActive = true

		// Copy data quickly; the widget downsamples on the UI goroutine
		cfg := state.acq().Config()
		series := sample.Convert(snap, sample.Calibrations(&cfg))
		fyne.Do(func() {
			state.scopeWidget.UpdateData(series)
			state.scopeWidget.SetStatus(text)
		})
	}
}

// statusText summarizes st for the scope overlay.
func statusText(st acquire.Status) string {
	text := st.State.String()
	if st.Session != nil {
		text = fmt.Sprintf("%s %s @ %d Hz", text, st.Session.Path, st.Session.SamplingFreq)
	}
	if st.Recording {
		text += fmt.Sprintf(" | recording %d records", st.Records)
	}
	if st.Fault != nil {
		text += " | " + st.Fault.Error()
	}
	return text
}
