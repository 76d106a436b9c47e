package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/trialfunnel-cli/internal/config"
	"github.com/KaramelBytes/trialfunnel-cli/internal/logging"
)

var (
	// Global flags
	cfgFile string
	debug   bool
	// Rule overrides (override config if set)
	flagWorkers            int
	flagRetentionMinVisits int

	// Loaded configuration
	cfg *cfgpkg.Global
	logger = logging.Discard()
)

var rootCmd = &cobra.Command{
	Use:   "trialfunnel",
	Short: "trialfunnel: trial-to-member conversion and retention from studio exports",
	Long: `trialfunnel reads new-client, booking and payment exports, decides which trial
clients converted into a qualifying purchase and which came back, and rolls the
results up per teacher, location and month.`,
	SilenceUsage: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	// Initialize configuration before executing commands
	cobra.OnInitialize(loadConfig)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.trialfunnel/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().IntVar(&flagWorkers, "workers", 0, "classification workers, 0 = all CPUs (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetentionMinVisits, "retention-min-visits", 0, "post-trial visits needed to count as retained (overrides config)")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: commands that need config report it themselves
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		cfg = nil
		return
	}
	cfg = c

	// Apply CLI overrides if provided
	f := rootCmd.PersistentFlags()
	if f.Changed("workers") && flagWorkers >= 0 {
		cfg.Workers = flagWorkers
	}
	if f.Changed("retention-min-visits") && flagRetentionMinVisits > 0 {
		cfg.RetentionMinVisits = flagRetentionMinVisits
	}
	if debug {
		cfg.LogLevel = "debug"
	}
	setupLogger(os.Stderr)
}

func setupLogger(w io.Writer) {
	if cfg == nil {
		return
	}
	l, err := logging.New(cfg.LogLevel, cfg.LogFormat, w)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: %v\n", err)
		return
	}
	logger = l
	slog.SetDefault(l)
}

// requireConfig returns the loaded config or the reason it is missing.
func requireConfig() (*cfgpkg.Global, error) {
	if cfg != nil {
		return cfg, nil
	}
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg = c
	return cfg, nil
}
