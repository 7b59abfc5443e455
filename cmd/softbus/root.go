package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/softbus/internal/config"
	"github.com/aretw0/softbus/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "softbus",
	Short: "softbus is a session and channel broker",
	Long: `softbus lets applications register named session servers, open sessions
to peer devices and exchange data over broker-managed channels.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); overrides config")
	rootCmd.PersistentFlags().String("network", "", "Daemon socket network (unix or tcp); overrides config")
	rootCmd.PersistentFlags().String("address", "", "Daemon socket address; overrides config")
}

// loadConfig reads the config file and applies the persistent flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v, _ := cmd.Flags().GetString("network"); v != "" {
		cfg.Listen.Network = v
	}
	if v, _ := cmd.Flags().GetString("address"); v != "" {
		cfg.Listen.Address = v
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewWithFormat(level, cfg.Log.Format)
}
