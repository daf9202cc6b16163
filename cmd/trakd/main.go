// Command trakd is the notification daemon's CLI entry point. It loads
// configuration, wires the event store, transaction tracker, summarizer,
// and channel dispatcher into the HTTP surface, and manages the daemon's
// process lifecycle (PID file, graceful shutdown).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "trakd",
		Short:         "Centralized notification daemon for AI coding-agent sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		buildServeCmd(),
		buildStatusCmd(),
		buildHealthCmd(),
		buildKeysCmd(),
		buildServiceCmd(),
	)
	return cmd
}

func defaultConfigPath() string {
	if v := os.Getenv("TRAK_CONFIG"); v != "" {
		return v
	}
	return "trak.yaml"
}

func defaultPIDPath() string {
	if v := os.Getenv("TRAK_PID_FILE"); v != "" {
		return v
	}
	return os.TempDir() + "/trakd.pid"
}
