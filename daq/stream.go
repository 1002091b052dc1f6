package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/itohio/godaq/pkg/acquire"
	"github.com/itohio/godaq/pkg/sample"
	"github.com/itohio/godaq/pkg/window"
)

func newStreamCmd(opts *options) *cobra.Command {
	var (
		duration time.Duration
		interval time.Duration
		seconds  int
	)

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Stream samples and print the latest values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			c := opts.newController(cfg)
			cals := sample.Calibrations(cfg)

			ctx, cancel := runContext(duration)
			defer cancel()

			if err := c.Start(ctx, seconds); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			err = watch(ctx, c, interval, func(st acquire.Status) {
				if snap, ok := c.Snapshot(); ok {
					printLatest(out, snap, cals)
				}
			})
			if serr := c.Stop(); serr != nil && err == nil {
				err = serr
			}
			return err
		},
	}
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "stop after this long, 0 runs until interrupted")
	cmd.Flags().DurationVarP(&interval, "interval", "i", time.Second, "print interval")
	cmd.Flags().IntVarP(&seconds, "window", "w", 0, "display window in seconds, 0 uses the configuration")
	return cmd
}

// printLatest prints the time and the physical values of the last row.
func printLatest(w io.Writer, snap window.Snapshot, cals []sample.Calibration) {
	n := snap.Len()
	if n == 0 {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%8.2fs", snap.Times[n-1])
	for ch, v := range snap.Row(n - 1) {
		cal := sample.Calibration{Label: fmt.Sprintf("ch%d", ch+1), Gain: 1}
		if ch < len(cals) {
			cal = cals[ch]
		}
		fmt.Fprintf(&b, "  %s=%.4g", cal.Label, cal.Physical(v))
		if cal.Unit != "" {
			b.WriteString(cal.Unit)
		}
	}
	fmt.Fprintln(w, b.String())
}
