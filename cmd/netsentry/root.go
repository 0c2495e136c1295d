package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/netsentry/netsentry/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "netsentry",
	Short: "NetSentry threat analytics service",
	Long: `netsentry ingests a live stream of network threat detections and serves
rolling aggregates, searchable event tables, and per-IP rollups to the
operator dashboard.`,
	Version: "0.1.0",
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not load config: %v\n", err)
		cfg = config.Default()
	}
}
