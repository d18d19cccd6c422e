package main

import (
	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:           "kernel-demo",
		Short:         "Run the rvkernel process subsystem in user space",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Boot the kernel and run the IPC workload",
		Long: `Boots the kernel, starts producers and consumers talking over a pipe,
a message queue and a named FIFO, then prints the process table and the
kernel metrics.`,
		Args: cobra.NoArgs,
		RunE: runWorkload,
	}
	psCmd = &cobra.Command{
		Use:   "ps",
		Short: "Boot the kernel, start a few sleepers and print the process table",
		Args:  cobra.NoArgs,
		RunE:  runPS,
	}

	configPath  string
	maxTicks    int
	jsonLogs    bool
	logLevel    string
	useTimer    bool
	showMetrics bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML kernel configuration")
	rootCmd.PersistentFlags().IntVar(&maxTicks, "ticks", 2000, "Timer ticks to drive before giving up")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Emit logs as JSON")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&useTimer, "timer", false, "Drive the scheduler from a wall-clock timer instead of stepping ticks")
	runCmd.Flags().BoolVar(&showMetrics, "metrics", true, "Dump kernel metrics after the run")

	rootCmd.AddCommand(psCmd)
}
