package cmd

import (
	"fmt"
	"strconv"

	pprofserver "github.com/samsaffron/term-chat/internal/pprof"
	"github.com/spf13/cobra"
)

var pprofCmd = &cobra.Command{
	Use:   "pprof [PORT]",
	Short: "Show how to profile a running term-chat",
	Long: `Print profiling commands for a term-chat started with --pprof.

First, start term-chat with profiling enabled:
  term-chat --pprof               # random port
  term-chat serve --pprof=6060    # specific port

Then, from another terminal:
  term-chat pprof                 # port is read from the registry file
  term-chat pprof 6060`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPprof,
}

func init() {
	rootCmd.AddCommand(pprofCmd)
}

func runPprof(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		port, err := strconv.Atoi(args[0])
		if err != nil || port <= 0 {
			return fmt.Errorf("invalid port %q", args[0])
		}
		pprofserver.PrintUsage(cmd.OutOrStdout(), port)
		return nil
	}
	port, running := pprofserver.IsServerRunning()
	if !running {
		return fmt.Errorf("no pprof server running; start term-chat with --pprof")
	}
	pprofserver.PrintUsage(cmd.OutOrStdout(), port)
	return nil
}
