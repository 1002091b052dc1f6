package main

import (
	"context"
	"fmt"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/widget"
	"github.com/rs/zerolog/log"

	"github.com/itohio/godaq/pkg/acquire"
	"github.com/itohio/godaq/pkg/edf"
)

// handleRecord starts recording to a new EDF file or stops the current one.
func handleRecord(state *appState) {
	go func() {
		state.busy.Lock()
		defer state.busy.Unlock()

		if state.acq().IsRecording() {
			if err := state.acq().StopRecording(); err != nil {
				showError(state, err)
			}
			logRecordingStatus(state.acq().Status())
			fyne.Do(func() { updateButtons(state) })
			return
		}

		cfg := state.acq().Config()
		wr, err := edf.NewRecording(&cfg, time.Now())
		if err != nil {
			showError(state, fmt.Errorf("failed to create recording: %w", err))
			return
		}
		log.Info().Str("file", wr.Name()).Msg("recording to")

		// The controller closes wr when recording stops, including on failure
		if err := state.acq().StartRecording(context.Background(), wr); err != nil {
			showError(state, err)
		}
		fyne.Do(func() { updateButtons(state) })
	}()
}

func logRecordingStatus(st acquire.Status) {
	log.Info().
		Int64("records", st.Records).
		Int64("dropped_samples", st.Dropped).
		Msg("recording finished")
}

// updateButtons updates the visual state of the toolbar buttons.
func updateButtons(state *appState) {
	st := state.acq().Status()
	updateToggleButton(state.streamBtn, st.State != acquire.Idle)
	updateToggleButton(state.recordBtn, st.Recording)
}

// updateToggleButton updates a single button's visual state.
func updateToggleButton(btn *widget.Button, isOn bool) {
	if isOn {
		btn.Importance = widget.HighImportance
	} else {
		btn.Importance = widget.MediumImportance
	}
	btn.Refresh()
}
