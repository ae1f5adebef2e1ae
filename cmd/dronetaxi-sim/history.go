package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"dronetaxi-sim/internal/assign"
)

var historyCmd = &cobra.Command{
	Use:   "history <drone-id>",
	Short: "Show the mock flight history of a drone",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.Close()
		fmt.Fprintln(cmd.OutOrStdout(), renderHistory(args[0], a.gen.History(args[0])))
		return nil
	},
}

func renderHistory(id string, flights []assign.Flight) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(styled).
		Headers("When", "From", "To", "Duration", "Status")
	for _, f := range flights {
		t.Row(f.Time, f.From, f.To, f.Duration, f.Status)
	}
	return headerStyle.Render(id) + "\n" + t.String()
}
