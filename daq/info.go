package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/itohio/godaq/pkg/edf"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info file.edf",
		Short: "Display the header of an EDF file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return displayFile(cmd, args[0])
		},
	}
}

func displayFile(cmd *cobra.Command, filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	h, err := edf.ReadHeader(f)
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "File:         %s (%d bytes)\n", filename, fi.Size())
	fmt.Fprintf(out, "Patient:      %s\n", h.PatientID)
	fmt.Fprintf(out, "Recording:    %s\n", h.RecordingID)
	fmt.Fprintf(out, "Start:        %s\n", h.StartTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Data records: %d x %s\n", h.DataRecords, h.DataRecordDuration)
	if h.DataRecords >= 0 {
		fmt.Fprintf(out, "Duration:     %s\n", h.DataRecordDuration*time.Duration(h.DataRecords))
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nLABEL\tUNIT\tPHYSICAL\tDIGITAL\tSAMPLES")
	for _, s := range h.Signals {
		fmt.Fprintf(w, "%s\t%s\t%g..%g\t%d..%d\t%d\n",
			s.Label, orDash(s.PhysicalDimension), s.PhysicalMin, s.PhysicalMax, s.DigitalMin, s.DigitalMax, s.SamplesPerRecord)
	}
	return w.Flush()
}
