package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/samsaffron/term-chat/internal/exitcode"
	pprofserver "github.com/samsaffron/term-chat/internal/pprof"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default $XDG_CONFIG_HOME/term-chat/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&cpuProfile, "cpuprofile", "", "Write CPU profile to file")
	rootCmd.PersistentFlags().StringVar(&memProfile, "memprofile", "", "Write memory profile to file")
	rootCmd.PersistentFlags().IntVar(&pprofPort, "pprof", -1, "Serve pprof on 127.0.0.1 (--pprof for a random port, --pprof=6060 for a fixed one)")
	rootCmd.PersistentFlags().Lookup("pprof").NoOptDefVal = "0"
	addChatFlags(rootCmd)
}

var rootCmd = &cobra.Command{
	Use:   "term-chat",
	Short: "Chat with a streaming assistant from the terminal",
	Long: `term-chat keeps several chat sessions on disk and streams assistant
replies into them, chunk by chunk.

Examples:
  term-chat                              # open the chat UI (same as "chat")
  term-chat --remote http://localhost:8787
  term-chat ask "what is a goroutine?"
  term-chat sessions list
  term-chat serve                        # local streaming backend`,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := startPprofServer(cmd); err != nil {
			return err
		}
		return startProfiling()
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		stopPprofServer()
		return stopProfiling()
	},
	RunE: runChat,
}

var configFile string
var logLevel string
var cpuProfile string
var memProfile string
var cpuProfileFile *os.File
var pprofPort int
var pprofSrv *pprofserver.Server

func startPprofServer(cmd *cobra.Command) error {
	if pprofPort < 0 {
		return nil
	}
	pprofSrv = pprofserver.NewServer(nil)
	port, err := pprofSrv.Start(pprofPort)
	if err != nil {
		pprofSrv = nil
		return fmt.Errorf("start pprof server: %w", err)
	}
	pprofserver.PrintUsage(cmd.ErrOrStderr(), port)
	return nil
}

func stopPprofServer() {
	if pprofSrv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = pprofSrv.Stop(ctx)
	pprofSrv = nil
}

func startProfiling() error {
	if cpuProfile != "" {
		f, err := os.Create(cpuProfile)
		if err != nil {
			return err
		}
		cpuProfileFile = f
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return err
		}
	}
	return nil
}

func stopProfiling() error {
	if cpuProfileFile != nil {
		pprof.StopCPUProfile()
		cpuProfileFile.Close()
		cpuProfileFile = nil
	}
	if memProfile != "" {
		f, err := os.Create(memProfile)
		if err != nil {
			return err
		}
		defer f.Close()
		runtime.GC()
		if err := pprof.WriteHeapProfile(f); err != nil {
			return err
		}
	}
	return nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr exitcode.ExitError
		if errors.As(err, &exitErr) {
			if exitErr.Code != exitcode.Cancelled && exitErr.Message != "" {
				fmt.Fprintln(os.Stderr, "Error:", exitErr.Message)
			}
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitcode.Error)
	}
}
