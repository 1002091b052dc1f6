// Command daq lists DAQ ports, streams samples to the terminal and records
// them to EDF files.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/itohio/godaq/pkg/acquire"
	"github.com/itohio/godaq/pkg/config"
	"github.com/itohio/godaq/pkg/mcu"
)

// options holds the persistent flags shared by all commands.
type options struct {
	configPath string
	port       string
	freq       int
	mock       bool
	verbose    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "daq",
		Short: "Serial multi-channel data acquisition",
		Long: `daq talks to an MCU sampling several ADC channels and streaming them over a
serial port. It can list candidate ports, print live samples and record them
to EDF files.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(cmd.ErrOrStderr(), opts.verbose)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "config.yaml", "configuration file path")
	flags.StringVarP(&opts.port, "port", "p", "", "serial port override (e.g., COM3 or /dev/ttyACM0)")
	flags.IntVarP(&opts.freq, "freq", "f", 0, "sampling frequency override in Hz")
	flags.BoolVar(&opts.mock, "mock", false, "use synthetic device instead of serial port")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(
		newPortsCmd(),
		newStreamCmd(opts),
		newRecordCmd(opts),
		newInfoCmd(),
		newInitConfigCmd(opts),
	)
	return rootCmd
}

func setupLogging(w io.Writer, verbose bool) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// loadConfig loads the configuration file and applies flag overrides.
func (o *options) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if o.port != "" {
		cfg.Device.Port = o.port
	}
	if o.freq > 0 {
		cfg.Acquisition.SamplingFreq = o.freq
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newController creates a controller for cfg.
func (o *options) newController(cfg *config.Config) *acquire.Controller {
	return acquire.New(cfg, mcu.NewFromConfig(cfg, o.mock))
}

// runContext returns a context cancelled on interrupt or, when d > 0,
// after d.
func runContext(d time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if d <= 0 {
		return ctx, stop
	}
	tctx, cancel := context.WithTimeout(ctx, d)
	return tctx, func() {
		cancel()
		stop()
	}
}

// watch calls fn every interval until ctx is done or the controller stops on
// its own. It returns the error that stopped the controller.
func watch(ctx context.Context, c *acquire.Controller, interval time.Duration, fn func(acquire.Status)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		st := c.Status()
		if st.State == acquire.Idle {
			if st.Fault != nil {
				return st.Fault
			}
			return nil
		}
		fn(st)
	}
}
