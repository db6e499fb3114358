// Package cmd implements the serialscan command-line interface.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/scanforge/serialscan/internal/config"
	"github.com/scanforge/serialscan/internal/models"
	"github.com/scanforge/serialscan/internal/version"
)

var (
	cfgFile      string
	globalConfig config.Config
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "serialscan",
	Short: "Real-time serial number scanning engine",
	Long: `serialscan detects, reads and validates device serial numbers from
camera frames. A scan session walks each frame through region detection,
text recognition, format classification and character disambiguation,
then stabilizes the candidates over time into an accept, borderline or
reject decision.

Examples:
  serialscan scan frame1.jpg frame2.jpg frame3.jpg
  serialscan scan --format json captures/*.png
  serialscan serve --addr :8080
  serialscan config show`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

// Execute runs the CLI. Called once by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GetRootCommand returns the root command for testing.
func GetRootCommand() *cobra.Command {
	return rootCmd
}

func init() {
	ver, commit, date := version.Info()
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", ver, commit, date)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is search in ., $HOME/.serialscan, /etc/serialscan)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().String("models-dir", "",
		"directory containing the scoring models (can also be set via "+models.EnvModelsDir+")")

	rootCmd.PersistentPreRunE = func(*cobra.Command, []string) error {
		return initConfig()
	}
}

// initConfig resolves the configuration and installs the default logger.
func initConfig() error {
	v, err := config.NewViper(cfgFile)
	if err != nil {
		return err
	}
	flags := rootCmd.PersistentFlags()
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("log.format", flags.Lookup("log-format"))
	_ = v.BindPFlag("models.dir", flags.Lookup("models-dir"))

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	globalConfig = cfg

	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}
