package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rvkernel/pkg/process"
)

// runPS starts a few processes in different states and prints the table
// before tearing them down.
func runPS(cmd *cobra.Command, _ []string) error {
	m, _, err := boot()
	if err != nil {
		return err
	}

	var pids []int
	for i, prio := range []int{5, 10, 20} {
		ticks := uint64(10 * (i + 1))
		p, err := m.Create(fmt.Sprintf("sleeper-%d", i), func(any) {
			m.SleepTicks(ticks)
		}, nil, process.WithPriority(prio))
		if err != nil {
			return err
		}
		pids = append(pids, p.PID())
	}
	p, err := m.Create("quick", func(any) {}, nil, process.WithUserSpace())
	if err != nil {
		return err
	}
	pids = append(pids, p.PID())

	stepUntil(m, func() bool {
		q, err := m.Get(p.PID())
		return err == nil && q.State() == process.StateZombie
	})
	for i := 0; i < m.Config().TimeSlice; i++ {
		m.Tick()
	}
	printTable(cmd.OutOrStdout(), m.Snapshot())

	stepUntil(m, func() bool { return childrenDone(m) })
	reapZombies(m)
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d processes reaped after %d ticks\n", len(pids), m.Ticks())
	return nil
}
