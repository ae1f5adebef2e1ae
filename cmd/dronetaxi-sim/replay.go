package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dronetaxi-sim/internal/config"
	"dronetaxi-sim/internal/events"
	"dronetaxi-sim/internal/logging"
)

var (
	replayInput  string
	replaySpeed  float64
	replayOutput output
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay an exported event log",
	Long:  "replay feeds events from a JSONL log written with --log-file back into GreptimeDB or STDOUT.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		env := config.FromEnv()
		if logLevel != "" {
			env.LogLevel = logLevel
		}
		log := logging.New(env.LogLevel)
		writer, cleanup, err := newWriters(env, replayOutput, log)
		if err != nil {
			return err
		}
		defer cleanup()
		n, err := events.ReplayFile(ctx, replayInput, writer, replaySpeed)
		log.Info("replay finished", "events", n, "input", replayInput)
		return err
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to event log file")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier (0 for no delay)")
	replayCmd.Flags().BoolVar(&replayOutput.PrintOnly, "print-only", false, "Print events to STDOUT instead of writing to GreptimeDB")
	replayCmd.Flags().BoolVar(&replayOutput.Pretty, "pretty", false, "Print colorized text instead of JSON lines")
	replayCmd.MarkFlagRequired("input")
}
