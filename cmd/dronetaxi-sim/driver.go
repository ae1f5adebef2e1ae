package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"dronetaxi-sim/internal/clock"
	"dronetaxi-sim/internal/events"
	"dronetaxi-sim/internal/logging"
	"dronetaxi-sim/internal/rides"
	"dronetaxi-sim/internal/tui"
)

var (
	driverTUI        bool
	driverOutput     output
	driverAutoAccept bool
)

var driverCmd = &cobra.Command{
	Use:   "driver",
	Short: "Run only the simulated driver",
	Long:  "driver runs the ride request state machine for the configured driver drone. With --tui it renders an interactive terminal view.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// The TUI owns the terminal.
		var log *slog.Logger
		if driverTUI {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return errors.New("--tui needs an interactive terminal")
			}
			log = logging.Discard()
		}
		a, err := openApp(ctx, log)
		if err != nil {
			return err
		}
		defer a.Close()

		var sink events.Writer
		var cleanup func()
		if driverTUI {
			sink, cleanup, err = tuiWriters(driverOutput.LogFile)
		} else {
			sink, cleanup, err = newWriters(a.env, driverOutput, a.log)
		}
		if err != nil {
			return err
		}
		defer cleanup()

		loop := clock.NewLoop()
		go loop.Run(ctx)

		out := &lateWriter{}
		m, closeMachine, err := a.newMachine(ctx, loop, out)
		if err != nil {
			return err
		}
		defer closeMachine()

		switch {
		case driverTUI:
			tw := tui.NewWriter(m, func() []rides.Ride {
				return a.rides.Today(context.Background(), time.Now())
			})
			defer tw.Close()
			out.set(events.NewMultiWriter(tw, sink))
		case driverAutoAccept:
			out.set(autoAccept(m, sink, a.log))
		default:
			out.set(sink)
		}

		loop.Do(ctx, m.Start)
		a.log.Info("driver started", "drone", m.Identity().DroneID, "city", m.Identity().City)
		<-ctx.Done()
		return nil
	},
}

func init() {
	driverCmd.Flags().BoolVar(&driverTUI, "tui", false, "Render the driver in an interactive terminal UI")
	driverOutput.register(driverCmd)
	driverCmd.Flags().BoolVar(&driverAutoAccept, "auto-accept", false, "Accept every ride request as soon as it is shown")
}
