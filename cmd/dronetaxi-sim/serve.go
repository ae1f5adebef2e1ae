package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dronetaxi-sim/internal/admin"
	"dronetaxi-sim/internal/clock"
	"dronetaxi-sim/internal/logging"
)

var (
	serveAddr   string
	serveOutput output
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the fleet dashboard and driver simulation with the HTTP API",
	Long:  "serve runs the fleet dashboard and the simulated driver on a wall-clock loop, exposes them over a JSON API and streams events to the configured sinks.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx, nil)
		if err != nil {
			return err
		}
		defer a.Close()
		ctx = logging.NewContext(ctx, a.log)

		writer, cleanup, err := newWriters(a.env, serveOutput, a.log)
		if err != nil {
			return err
		}
		defer cleanup()

		loop := clock.NewLoop()
		go loop.Run(ctx)

		dash, closeDash, err := a.newDashboard(ctx, loop, writer)
		if err != nil {
			return err
		}
		defer closeDash()
		m, closeMachine, err := a.newMachine(ctx, loop, writer)
		if err != nil {
			return err
		}
		defer closeMachine()

		loop.Do(ctx, func() {
			dash.Start()
			dash.MapLoaded()
			m.Start()
		})

		srv := admin.NewServer(dash, m, a.rides, nil, a.log)
		logging.FromContext(ctx).Info("admin API listening", "addr", serveAddr)
		if err := srv.Serve(ctx, serveAddr); err != nil {
			return err
		}
		a.log.Info("drone taxi simulation stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Admin API listen address")
	serveOutput.register(serveCmd)
}
