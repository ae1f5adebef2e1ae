package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	envFile    string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "dronetaxi-sim",
	Short: "Drone taxi fleet and trip simulator",
	Long:  "dronetaxi-sim simulates a drone taxi fleet dashboard and a single driver accepting ride requests.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("cannot load %s: %w", envFile, err)
		}
		return nil
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to fleet configuration YAML (embedded defaults when empty)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(driverCmd)
	rootCmd.AddCommand(ridesCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(replayCmd)
}
