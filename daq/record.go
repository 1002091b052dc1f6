package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/itohio/godaq/pkg/acquire"
	"github.com/itohio/godaq/pkg/edf"
)

func newRecordCmd(opts *options) *cobra.Command {
	var (
		duration time.Duration
		subject  string
		dataPath string
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record samples to an EDF file",
		Long: `Record streams samples into a new EDF file named after the subject code and
the start time. Partial data records are discarded when recording stops.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if subject != "" {
				cfg.Subject.Code = subject
			}
			if cmd.Flags().Changed("data-path") {
				cfg.Recording.DataPath = dataPath
			}
			c := opts.newController(cfg)

			wr, err := edf.NewRecording(cfg, time.Now())
			if err != nil {
				return fmt.Errorf("failed to create recording: %w", err)
			}

			ctx, cancel := runContext(duration)
			defer cancel()

			if err := c.StartRecording(ctx, wr); err != nil {
				wr.Close()
				return err
			}
			log.Info().Str("file", wr.Name()).Msg("recording")

			err = watch(ctx, c, time.Second, func(st acquire.Status) {
				log.Debug().Int64("records", st.Records).Msg("recording")
			})
			err = errors.Join(err, c.StopRecording())

			st := c.Status()
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d data records, %d samples dropped\n", wr.Name(), st.Records, st.Dropped)
			return err
		},
	}
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "stop after this long, 0 runs until interrupted")
	cmd.Flags().StringVarP(&subject, "subject", "s", "", "subject code override")
	cmd.Flags().StringVar(&dataPath, "data-path", "", "output directory override, empty for home")
	return cmd
}
