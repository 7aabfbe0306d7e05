package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/BDNK1/ivrflow/runtime"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ivrflow",
	Short: "ivrflow - IVR flow execution engine",
	Long: `ivrflow runs JSON or YAML defined call flows on Asterisk channels.

Flows are validated and simulated offline with the validate and simulate
commands; serve connects to ARI and answers calls.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to ivrflow.yaml")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(simulateCmd)
}

// loadConfig reads the config file and installs the configured logger as the
// slog default.
func loadConfig() (*runtime.Config, *slog.Logger, error) {
	cfg, err := runtime.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	l := newLogger(cfg.Log)
	slog.SetDefault(l)
	return cfg, l, nil
}

func newLogger(cfg runtime.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
