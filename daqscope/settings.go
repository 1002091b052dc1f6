package main

import (
	"fmt"
	"slices"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/godaq/pkg/config"
	"github.com/itohio/godaq/pkg/mcu"
)

// showSettingsDialog displays a settings dialog with tabs for all configuration options.
func showSettingsDialog(state *appState) {
	tabs := container.NewAppTabs(
		createDeviceTab(state),
		createAcquisitionTab(state),
		createSignalsTab(state),
		createSubjectTab(state),
		createRecordingTab(state),
		createMockTab(state),
	)

	content := container.NewBorder(nil, nil, nil, nil, tabs)
	content.Resize(fyne.NewSize(600, 500))

	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(600, 500))
	d.Show()
}

// applySettings applies edit to a copy of the configuration. The copy
// replaces the current one only if the controller accepts it, which
// requires streaming to be stopped.
func applySettings(state *appState, edit func(cfg *config.Config)) {
	cfg := *state.cfg
	cfg.Signals = slices.Clone(state.cfg.Signals)
	edit(&cfg)

	if err := state.acq().Configure(&cfg); err != nil {
		dialog.ShowError(fmt.Errorf("settings not applied: %w", err), state.window)
		return
	}
	deviceChanged := cfg.Device != state.cfg.Device || cfg.Mock != state.cfg.Mock || cfg.NumSignals() != state.cfg.NumSignals()
	state.cfg = &cfg
	if deviceChanged {
		state.newController()
	}
	state.scopeWidget.SetHorizon(cfg.Display.WindowSeconds)

	if err := state.cfg.Save(state.configPath); err != nil {
		dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
	}
}

// createDeviceTab creates the Device configuration tab.
func createDeviceTab(state *appState) *container.TabItem {
	// Get available serial ports
	ports, err := mcu.Ports()
	portOptions := []string{autoPort}
	portMap := map[string]string{autoPort: ""} // Map display name to actual port name

	if err == nil {
		for _, port := range ports {
			displayName := port.Name
			if port.Product != "" {
				displayName = fmt.Sprintf("%s (%s)", port.Name, port.Product)
			}
			portOptions = append(portOptions, displayName)
			portMap[displayName] = port.Name
		}
	}

	// Add current port if not in list
	currentPort := state.cfg.Device.Port
	currentDisplay := autoPort
	found := currentPort == ""
	for _, opt := range portOptions {
		if currentPort != "" && portMap[opt] == currentPort {
			currentDisplay = opt
			found = true
			break
		}
	}
	if !found {
		portOptions = append(portOptions, currentPort)
		portMap[currentPort] = currentPort
		currentDisplay = currentPort
	}

	portSelect := widget.NewSelect(portOptions, nil)
	portSelect.SetSelected(currentDisplay)

	baudOptions := make([]string, len(config.BaudRates))
	for i, b := range config.BaudRates {
		baudOptions[i] = strconv.Itoa(b)
	}
	baudSelect := widget.NewSelect(baudOptions, nil)
	baudSelect.SetSelected(strconv.Itoa(state.cfg.Device.BaudRate))

	manufacturerEntry := widget.NewEntry()
	manufacturerEntry.SetText(state.cfg.Device.Manufacturer)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Serial Port", Widget: portSelect},
			{Text: "Baud Rate", Widget: baudSelect},
			{Text: "Manufacturer", Widget: manufacturerEntry},
		},
		OnSubmit: func() {
			applySettings(state, func(cfg *config.Config) {
				if port, ok := portMap[portSelect.Selected]; ok {
					cfg.Device.Port = port
				}
				if baud, err := strconv.Atoi(baudSelect.Selected); err == nil {
					cfg.Device.BaudRate = baud
				}
				cfg.Device.Manufacturer = manufacturerEntry.Text
			})
		},
	}

	return container.NewTabItem("Device", form)
}

const autoPort = "Auto"

// createAcquisitionTab creates the Acquisition configuration tab.
func createAcquisitionTab(state *appState) *container.TabItem {
	freqEntry := widget.NewEntry()
	freqEntry.SetText(strconv.Itoa(state.cfg.Acquisition.SamplingFreq))

	channelsEntry := widget.NewEntry()
	channelsEntry.SetText(strconv.Itoa(state.cfg.NumSignals()))

	windowEntry := widget.NewEntry()
	windowEntry.SetText(strconv.Itoa(state.cfg.Display.WindowSeconds))

	maxPointsEntry := widget.NewEntry()
	maxPointsEntry.SetText(strconv.Itoa(state.cfg.Display.MaxPoints))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Sampling Frequency (Hz)", Widget: freqEntry},
			{Text: "Channels", Widget: channelsEntry},
			{Text: "Window (seconds)", Widget: windowEntry},
			{Text: "Max Display Points", Widget: maxPointsEntry},
		},
		OnSubmit: func() {
			applySettings(state, func(cfg *config.Config) {
				if f, err := strconv.Atoi(freqEntry.Text); err == nil {
					cfg.Acquisition.SamplingFreq = f
				}
				if n, err := strconv.Atoi(channelsEntry.Text); err == nil && n > 0 {
					cfg.Signals = resizeSignals(cfg.Signals, n)
				}
				if ws, err := strconv.Atoi(windowEntry.Text); err == nil && ws > 0 {
					cfg.Display.WindowSeconds = ws
				}
				if mp, err := strconv.Atoi(maxPointsEntry.Text); err == nil && mp > 0 {
					cfg.Display.MaxPoints = mp
				}
			})
		},
	}

	return container.NewTabItem("Acquisition", form)
}

// resizeSignals truncates signals or pads them with copies of the first one.
func resizeSignals(signals []config.SignalConfig, n int) []config.SignalConfig {
	if n <= len(signals) {
		return signals[:n]
	}
	tmpl := config.Default().Signals[0]
	if len(signals) > 0 {
		tmpl = signals[0]
	}
	for i := len(signals); i < n; i++ {
		s := tmpl
		s.Label = fmt.Sprintf("Signal %d", i+1)
		signals = append(signals, s)
	}
	return signals
}

// createSignalsTab creates the per-signal calibration tab.
func createSignalsTab(state *appState) *container.TabItem {
	type signalEntries struct {
		label, dim, physMin, physMax, digMin, digMax *widget.Entry
	}

	newEntry := func(text string) *widget.Entry {
		e := widget.NewEntry()
		e.SetText(text)
		return e
	}

	entries := make([]signalEntries, len(state.cfg.Signals))
	var items []*widget.FormItem
	for i, s := range state.cfg.Signals {
		e := signalEntries{
			label:   newEntry(s.Label),
			dim:     newEntry(s.PhysicalDim),
			physMin: newEntry(strconv.FormatFloat(s.PhysicalMin, 'g', -1, 64)),
			physMax: newEntry(strconv.FormatFloat(s.PhysicalMax, 'g', -1, 64)),
			digMin:  newEntry(strconv.Itoa(s.DigitalMin)),
			digMax:  newEntry(strconv.Itoa(s.DigitalMax)),
		}
		entries[i] = e
		items = append(items,
			&widget.FormItem{Text: fmt.Sprintf("%d Label", i+1), Widget: e.label},
			&widget.FormItem{Text: "Unit", Widget: e.dim},
			&widget.FormItem{Text: "Physical Range", Widget: container.NewGridWithColumns(2, e.physMin, e.physMax)},
			&widget.FormItem{Text: "Digital Range", Widget: container.NewGridWithColumns(2, e.digMin, e.digMax)},
		)
	}

	form := &widget.Form{
		Items: items,
		OnSubmit: func() {
			applySettings(state, func(cfg *config.Config) {
				for i := range min(len(entries), len(cfg.Signals)) {
					e, s := entries[i], &cfg.Signals[i]
					s.Label = e.label.Text
					s.PhysicalDim = e.dim.Text
					if v, err := strconv.ParseFloat(e.physMin.Text, 64); err == nil {
						s.PhysicalMin = v
					}
					if v, err := strconv.ParseFloat(e.physMax.Text, 64); err == nil {
						s.PhysicalMax = v
					}
					if v, err := strconv.Atoi(e.digMin.Text); err == nil {
						s.DigitalMin = v
					}
					if v, err := strconv.Atoi(e.digMax.Text); err == nil {
						s.DigitalMax = v
					}
				}
			})
		},
	}

	return container.NewTabItem("Signals", container.NewVScroll(form))
}

// createSubjectTab creates the Subject configuration tab.
func createSubjectTab(state *appState) *container.TabItem {
	codeEntry := widget.NewEntry()
	codeEntry.SetText(state.cfg.Subject.Code)

	sexSelect := widget.NewSelect([]string{"M", "F", "X"}, nil)
	sexSelect.SetSelected(state.cfg.Subject.Sex)

	birthdateEntry := widget.NewEntry()
	birthdateEntry.SetPlaceHolder("02-AUG-1951")
	birthdateEntry.SetText(state.cfg.Subject.Birthdate)

	nameEntry := widget.NewEntry()
	nameEntry.SetText(state.cfg.Subject.Name)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Code", Widget: codeEntry},
			{Text: "Sex", Widget: sexSelect},
			{Text: "Birthdate", Widget: birthdateEntry},
			{Text: "Name", Widget: nameEntry},
		},
		OnSubmit: func() {
			applySettings(state, func(cfg *config.Config) {
				cfg.Subject = config.SubjectConfig{
					Code:      codeEntry.Text,
					Sex:       sexSelect.Selected,
					Birthdate: birthdateEntry.Text,
					Name:      nameEntry.Text,
				}
			})
		},
	}

	return container.NewTabItem("Subject", form)
}

// createRecordingTab creates the Recording configuration tab.
func createRecordingTab(state *appState) *container.TabItem {
	dataPathEntry := widget.NewEntry()
	dataPathEntry.SetPlaceHolder("empty for home directory")
	dataPathEntry.SetText(state.cfg.Recording.DataPath)

	periodEntry := widget.NewEntry()
	periodEntry.SetText(strconv.Itoa(state.cfg.Recording.SavingPeriod))

	experimentEntry := widget.NewEntry()
	experimentEntry.SetText(state.cfg.Recording.ExperimentID)

	investigatorEntry := widget.NewEntry()
	investigatorEntry.SetText(state.cfg.Recording.InvestigatorID)

	equipmentEntry := widget.NewEntry()
	equipmentEntry.SetText(state.cfg.Recording.EquipmentCode)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Data Path", Widget: dataPathEntry},
			{Text: "Data Record (seconds)", Widget: periodEntry},
			{Text: "Experiment", Widget: experimentEntry},
			{Text: "Investigator", Widget: investigatorEntry},
			{Text: "Equipment", Widget: equipmentEntry},
		},
		OnSubmit: func() {
			applySettings(state, func(cfg *config.Config) {
				cfg.Recording.DataPath = dataPathEntry.Text
				if p, err := strconv.Atoi(periodEntry.Text); err == nil {
					cfg.Recording.SavingPeriod = p
				}
				cfg.Recording.ExperimentID = experimentEntry.Text
				cfg.Recording.InvestigatorID = investigatorEntry.Text
				cfg.Recording.EquipmentCode = equipmentEntry.Text
			})
		},
	}

	return container.NewTabItem("Recording", form)
}

// createMockTab creates the Mock device configuration tab.
func createMockTab(state *appState) *container.TabItem {
	bufferSizeEntry := widget.NewEntry()
	bufferSizeEntry.SetText(strconv.Itoa(state.cfg.Mock.BufferSize))

	amplitudeEntry := widget.NewEntry()
	amplitudeEntry.SetText(fmt.Sprintf("%.0f", state.cfg.Mock.Amplitude))

	signalHzEntry := widget.NewEntry()
	signalHzEntry.SetText(fmt.Sprintf("%.2f", state.cfg.Mock.SignalHz))

	noiseLevelEntry := widget.NewEntry()
	noiseLevelEntry.SetText(fmt.Sprintf("%.0f", state.cfg.Mock.NoiseLevel))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Buffer Size (0=firmware)", Widget: bufferSizeEntry},
			{Text: "Amplitude (counts)", Widget: amplitudeEntry},
			{Text: "Signal (Hz)", Widget: signalHzEntry},
			{Text: "Noise Level (counts)", Widget: noiseLevelEntry},
		},
		OnSubmit: func() {
			applySettings(state, func(cfg *config.Config) {
				if bs, err := strconv.Atoi(bufferSizeEntry.Text); err == nil && bs >= 0 {
					cfg.Mock.BufferSize = bs
				}
				if a, err := strconv.ParseFloat(amplitudeEntry.Text, 64); err == nil {
					cfg.Mock.Amplitude = a
				}
				if hz, err := strconv.ParseFloat(signalHzEntry.Text, 64); err == nil {
					cfg.Mock.SignalHz = hz
				}
				if nl, err := strconv.ParseFloat(noiseLevelEntry.Text, 64); err == nil {
					cfg.Mock.NoiseLevel = nl
				}
			})
		},
	}

	return container.NewTabItem("Mock", form)
}
