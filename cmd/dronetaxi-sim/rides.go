package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"dronetaxi-sim/internal/rides"
)

var (
	ridesToday bool
	ridesClear bool
)

var ridesCmd = &cobra.Command{
	Use:   "rides",
	Short: "List rides completed by the driver",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		if ridesClear {
			a.rides.Clear(ctx)
			fmt.Fprintln(cmd.OutOrStdout(), "completed rides cleared")
			return nil
		}
		list := a.rides.List(ctx)
		if ridesToday {
			list = a.rides.Today(ctx, time.Now())
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderRides(list))
		return nil
	},
}

func init() {
	ridesCmd.Flags().BoolVar(&ridesToday, "today", false, "Only rides completed today (local time)")
	ridesCmd.Flags().BoolVar(&ridesClear, "clear", false, "Delete every completed ride")
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func styled(row, _ int) lipgloss.Style {
	if row == table.HeaderRow {
		return headerStyle
	}
	return cellStyle
}

func renderRides(list []rides.Ride) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(styled).
		Headers("Completed", "Drone", "From", "To", "Pax")
	for _, r := range list {
		t.Row(r.CompletedAt.Local().Format(time.DateTime), r.DroneID, r.Origin, r.Destination, strconv.Itoa(r.Passengers))
	}
	s := rides.Summarize(list)
	return fmt.Sprintf("%s\n%d rides, %d passengers", t.String(), s.Rides, s.Passengers)
}
