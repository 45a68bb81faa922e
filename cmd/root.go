package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "stationd",
	Short: "Data collection daemon for LAN weather stations",
	Long: `stationd polls a weather station's wind.json and sensors.json endpoints on a
schedule, stores each merged reading in PostgreSQL, and keeps a durable local
SQLite queue for readings taken while the database is unreachable. Queued
readings are synced oldest first once the database is back.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "settings file path")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: json, text or pretty (overrides log_format)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
