package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/pathway/internal/logging"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "pathway",
	Short: "Refine clinical decision pathways with a generative model",
	Long: "Pathway keeps a clinical decision pathway structurally sound while a generative\n" +
		"model rewrites it: every candidate is schema-checked, count-guarded and validated\n" +
		"before it replaces the current graph, and every accepted change can be undone.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "settings file (default ~/.pathway/settings.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(diagramCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the layered config and builds the stderr logger. The returned
// LevelVar lets a config reload change verbosity in place.
func setup() (Config, *slog.Logger, *slog.LevelVar, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return Config{}, nil, nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	lvl, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return Config{}, nil, nil, err
	}
	level := new(slog.LevelVar)
	level.Set(lvl)

	// stdout carries the MCP stream; logs always go to stderr.
	return cfg, logging.New(os.Stderr, level, cfg.LogFormat), level, nil
}
