package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/itohio/godaq/pkg/acquire"
	"github.com/itohio/godaq/pkg/config"
	"github.com/itohio/godaq/pkg/mcu"
	"github.com/itohio/godaq/pkg/scope"
)

func main() {
	var (
		portFlag    string
		configFlag  string
		mockFlag    bool
		verboseFlag bool
	)

	cmd := &cobra.Command{
		Use:          "daqscope",
		Short:        "Live view and EDF recording for the serial DAQ",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(verboseFlag)

			// Load configuration
			cfg, err := config.Load(configFlag)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			// Override serial port if provided via command line
			if portFlag != "" {
				cfg.Device.Port = portFlag
			}

			run(cfg, configFlag, mockFlag)
			return nil
		},
	}
	cmd.Flags().StringVarP(&portFlag, "port", "p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
	cmd.Flags().StringVar(&configFlag, "config", "config.yaml", "Configuration file path")
	cmd.Flags().BoolVar(&mockFlag, "mock", false, "Use synthetic device instead of serial port")
	cmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "Debug logging")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging(verbose bool) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func run(cfg *config.Config, configPath string, useMock bool) {
	// Create Fyne application
	application := app.NewWithID("com.itohio.godaq")

	// Create main window
	window := application.NewWindow("DAQ Scope")
	window.Resize(fyne.NewSize(1200, 800))
	window.CenterOnScreen()

	state := &appState{
		cfg:        cfg,
		configPath: configPath,
		window:     window,
		useMock:    useMock,
	}
	state.newController()

	// Create toolbar
	toolbar := createToolbar(state)

	// Create scope widget for graph display
	state.scopeWidget = scope.New(cfg)
	state.scopeWidget.SetStatus(acquire.Idle.String())

	content := container.NewBorder(
		toolbar,
		nil,
		nil,
		nil,
		state.scopeWidget,
	)

	updaterDone := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer close(updaterDone)
		state.updateLoop(ctx)
	}()

	window.SetOnClosed(func() {
		cancel()
		<-updaterDone
		if err := state.acq().Stop(); err != nil {
			log.Error().Err(err).Msg("stop")
		}
		if err := state.cfg.Save(state.configPath); err != nil {
			log.Error().Err(err).Str("path", state.configPath).Msg("failed to save config")
		}
	})

	window.SetContent(content)
	window.ShowAndRun()
}

// appState holds the application state.
type appState struct {
	cfg         *config.Config
	configPath  string
	controller  atomic.Pointer[acquire.Controller]
	scopeWidget *scope.ScopeWidget
	window      fyne.Window
	streamBtn   *widget.Button
	recordBtn   *widget.Button
	useMock     bool

	// Serializes button handlers running off the UI goroutine
	busy sync.Mutex
}

// acq returns the current controller.
func (state *appState) acq() *acquire.Controller {
	return state.controller.Load()
}

// newController replaces the controller, e.g. after a port change. The old
// one must be idle.
func (state *appState) newController() {
	link := mcu.NewFromConfig(state.cfg, state.useMock)
	state.controller.Store(acquire.New(state.cfg, link))
}

// createToolbar creates the application toolbar with Stream, Record and Settings buttons.
func createToolbar(state *appState) fyne.CanvasObject {
	streamBtn := widget.NewButtonWithIcon("", theme.MediaPlayIcon(), func() {
		handleStream(state)
	})
	state.streamBtn = streamBtn

	recordBtn := widget.NewButtonWithIcon("", theme.MediaRecordIcon(), func() {
		handleRecord(state)
	})
	state.recordBtn = recordBtn

	// Settings button with icon
	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})

	return container.NewBorder(
		nil,
		nil,
		container.NewHBox(streamBtn, recordBtn),
		container.NewHBox(settingsBtn),
		nil,
	)
}

// handleStream starts or stops streaming.
func handleStream(state *appState) {
	go func() {
		state.busy.Lock()
		defer state.busy.Unlock()

		var err error
		if state.acq().State() == acquire.Idle {
			err = state.acq().Start(context.Background(), 0)
		} else {
			err = state.acq().Stop()
		}
		if err != nil {
			showError(state, err)
		}
		fyne.Do(func() { updateButtons(state) })
	}()
}

// showError shows err in a dialog from any goroutine.
func showError(state *appState, err error) {
	log.Error().Err(err).Msg("acquisition")
	fyne.Do(func() {
		dialog.ShowError(err, state.window)
	})
}
