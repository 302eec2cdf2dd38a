package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/autoreg/internal/config"
	"github.com/dbsmedya/autoreg/internal/logger"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.0.1-dev"
	Commit  = "unknown"
)

// CLI flags that override config file values
var (
	cfgFile   string
	logLevel  string
	logFormat string
	namespace string
	outputDir string
	workers   int
)

var rootCmd = &cobra.Command{
	Use:   "autoreg",
	Short: "Capability type discovery and registry generator",
	Long: `autoreg scans a Go module (and *.autoreg.yaml declaration tables) for
concrete types that implement a whitelisted capability interface, and writes
a generated Go file registering every discovered type.

Features:
  - Interface closure over embedding and explicit assertions
  - Change detection: the registry is rewritten only when the set changes
  - Concurrent classification with a digest-keyed memo
  - Watch mode with debounced file notifications
  - File or MySQL persistence of the previous discovery set`,
	Version:      Version,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Config file flag
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "autoreg.yaml",
		"Path to configuration file")

	// Logging overrides
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Override log format (json, text)")

	// Discovery overrides
	rootCmd.PersistentFlags().StringVar(&namespace, "namespace", "",
		"Override the import path of the generated package")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output", "",
		"Override the output directory of the generated file")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0,
		"Override classification concurrency (0 uses GOMAXPROCS)")
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// CLIOverrides contains flag values that override config file settings
type CLIOverrides struct {
	LogLevel  string
	LogFormat string
	Namespace string
	OutputDir string
	Workers   int
}

// GetCLIOverrides returns the CLI flag override values
func GetCLIOverrides() CLIOverrides {
	return CLIOverrides{
		LogLevel:  logLevel,
		LogFormat: logFormat,
		Namespace: namespace,
		OutputDir: outputDir,
		Workers:   workers,
	}
}

// loadConfig reads the config file and applies flag overrides. The result
// is not validated.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	o := GetCLIOverrides()
	cfg.ApplyOverrides(o.LogLevel, o.LogFormat, o.Namespace, o.OutputDir, o.Workers)
	return cfg, nil
}

// loadValidConfig is loadConfig followed by validation and logger setup.
func loadValidConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}
