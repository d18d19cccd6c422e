// Command kernel-demo boots the process subsystem on a simulated hart and runs
// a small producer/consumer workload over its IPC primitives.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
