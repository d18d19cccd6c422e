package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/prometheus/common/expfmt"

	"rvkernel/pkg/process"
)

func printTable(w io.Writer, procs []process.Info) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PID\tPPID\tSTATE\tPRI\tCPU\tEXIT\tNAME\tWAIT")
	for _, p := range procs {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%d\t%d\t%d\t%s\t%s\n",
			p.PID, p.Parent, p.State, p.Priority, p.CPUTime, p.ExitCode, p.Name, p.Reason)
	}
	tw.Flush()
}

func printMetrics(w io.Writer, m *process.Manager) error {
	families, err := m.Registry().Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
