package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/itohio/godaq/pkg/mcu"
)

func newPortsCmd() *cobra.Command {
	var tag string

	cmd := &cobra.Command{
		Use:   "ports",
		Short: "List serial ports and their USB details",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := mcu.Ports()
			if err != nil {
				return err
			}
			printPorts(cmd, ports, tag)
			return nil
		},
	}
	cmd.Flags().StringVarP(&tag, "manufacturer", "m", "", "mark ports matching this manufacturer tag")
	return cmd
}

func printPorts(cmd *cobra.Command, ports []mcu.PortInfo, tag string) {
	if len(ports) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No serial ports found")
		return
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PORT\tVID:PID\tSERIAL\tPRODUCT\tMATCH")
	for _, p := range ports {
		ids := "-"
		if p.IsUSB {
			ids = p.VID + ":" + p.PID
		}
		match := ""
		if tag != "" && p.Matches(tag) {
			match = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.Name, ids, orDash(p.SerialNumber), orDash(p.Product), match)
	}
	w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
