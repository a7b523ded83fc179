package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/homestalk/internal/config"
)

var (
	cfgFile   string
	verbose   bool
	envFile   string
	outputDir string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "homestalk",
		Short: "homestalk: listing export, filter and enrichment pipeline",
		Long: `homestalk pulls a region's listings from the bulk CSV export, filters
them locally and enriches the survivors from their listing pages.

Stages:
  • Bulk CSV download, with a headless browser fallback when blocked
  • Column normalization and numeric coercion
  • Min/max and property type filters
  • Sequential listing page enrichment (description + photos)
  • CSV/JSON artifacts, optional MongoDB sink and Prometheus metrics`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var files []string
			if envFile != "" {
				files = append(files, envFile)
			}
			_, err := config.LoadDotEnv(files...)
			return err
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "env file to load (default ./.env if present)")

	rootCmd.AddCommand(downloadCmd())
	rootCmd.AddCommand(pipelineCmd())
	rootCmd.AddCommand(runConfigCmd())
	rootCmd.AddCommand(initConfigCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("homestalk %s\n", config.Version)
		},
	}
}

// initConfigCmd writes a sample config with two stored queries.
func initConfigCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write a sample configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			cfg.Queries = config.SampleQueries()
			if err := config.Save(cfg, output); err != nil {
				return err
			}
			fmt.Printf("Sample config saved to %s\n", output)
			fmt.Println("Edit the queries and filters, then run with:")
			fmt.Printf("  homestalk run-config -c %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "homestalk.yaml", "where to write the config")
	return cmd
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Fetcher:\n")
			fmt.Printf("  Endpoint:          %s%s\n", cfg.Fetcher.BaseURL, cfg.Fetcher.CSVPath)
			fmt.Printf("  Timeout:           %s\n", cfg.Fetcher.Timeout)
			fmt.Printf("  Rate Limit:        %.2f req/s (burst %d)\n", cfg.Fetcher.RateLimit, cfg.Fetcher.RateBurst)
			fmt.Printf("  Max Body Size:     %d bytes\n", cfg.Fetcher.MaxBodySize)
			fmt.Printf("\nFallback:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Fallback.Enabled)
			fmt.Printf("  Headless:          %v\n", cfg.Fallback.Headless)
			fmt.Printf("  Timeout:           %s\n", cfg.Fallback.Timeout)
			fmt.Printf("\nEnrich:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Enrich.Enabled)
			fmt.Printf("  Delay:             %s - %s\n", cfg.Enrich.DelayMin, cfg.Enrich.DelayMax)
			fmt.Printf("  Page Cache:        %v (%s)\n", cfg.Enrich.Cache.Enabled, cfg.Enrich.Cache.Addr)
			fmt.Printf("\nStorage:\n")
			fmt.Printf("  Output Dir:        %s\n", cfg.Storage.OutputDir)
			fmt.Printf("  MongoDB:           %v\n", cfg.Storage.Mongo.Enabled)
			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Metrics.Enabled)
			fmt.Printf("  Port:              %d\n", cfg.Metrics.Port)
			fmt.Printf("\nQueries:           %d configured\n", len(cfg.Queries))
			for _, q := range cfg.Queries {
				fmt.Printf("  - %s (region %d, %s)\n", q.Name, q.RegionID, q.RegionType)
			}
			return nil
		},
	}
}

// setupLogger creates a structured logger from the logging config.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
