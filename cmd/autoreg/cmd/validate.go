package cmd

import (
	"errors"
	"fmt"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/dbsmedya/autoreg/internal/config"
	"github.com/dbsmedya/autoreg/internal/graph"
	"github.com/dbsmedya/autoreg/internal/logger"
	"github.com/dbsmedya/autoreg/internal/source"
	"github.com/dbsmedya/autoreg/internal/state"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and inspect the type hierarchy",
	Long: `Validate checks the configuration file, loads every source and reports
problems that would make discovery surprising.

Checks performed:
  - Configuration syntax and required fields
  - Source files that could not be parsed
  - Cycles in the type hierarchy (reported, never fatal)
  - Whitelisted capabilities that no type implements
  - State backend connectivity

Example:
  autoreg validate --config autoreg.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	cmd.Printf("\n=== Configuration Validation ===\n")
	cmd.Printf("Config file: %s\n", configFile)
	cmd.Printf("Namespace:   %s\n", cfg.Namespace)
	cmd.Printf("Whitelist:   %d identifier(s)\n\n", len(cfg.Whitelist))

	if err := cfg.Validate(); err != nil {
		cmd.Printf("%s %v\n", color.Red.Sprint("✗"), err)
		return fmt.Errorf("configuration is invalid")
	}
	cmd.Printf("%s Configuration valid\n", color.Green.Sprint("✓"))

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	ctx := commandContext(cmd)

	table, report, err := source.NewLoader(cfg, log).Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sources: %w", err)
	}
	cmd.Printf("%s Loaded %d declaration(s) from %d file(s)\n",
		color.Green.Sprint("✓"), table.Len(), len(report.Files))
	for _, sk := range report.Skipped {
		cmd.Printf("%s Skipped %s: %s\n", color.Yellow.Sprint("!"), sk.Path, sk.Reason)
	}

	h, err := graph.BuildFromTable(table)
	if err != nil {
		return fmt.Errorf("failed to build type hierarchy: %w", err)
	}

	warnings := len(report.Skipped)
	warnings += reportCycles(cmd, h)
	warnings += reportUnusedCapabilities(cmd, cfg, h)

	store, err := state.Open(ctx, cfg, log)
	if err != nil {
		cmd.Printf("%s State backend %q: %v\n", color.Red.Sprint("✗"), cfg.State.Backend, err)
		return fmt.Errorf("state backend is unreachable")
	}
	store.Close()
	cmd.Printf("%s State backend %q reachable\n", color.Green.Sprint("✓"), backendName(cfg))

	cmd.Println("\n=== Validation Complete ===")
	if warnings > 0 {
		cmd.Printf("%d warning(s)\n", warnings)
	} else {
		cmd.Println("No warnings")
	}
	return nil
}

// reportCycles prints cycle diagnostics and returns the number of warnings.
func reportCycles(cmd *cobra.Command, h *graph.Hierarchy) int {
	err := h.Validate()
	if err == nil {
		cmd.Printf("%s Type hierarchy is acyclic (%d types)\n", color.Green.Sprint("✓"), h.NodeCount())
		return 0
	}

	var cycleErr *graph.CycleError
	if errors.As(err, &cycleErr) {
		cmd.Printf("%s %d type(s) take part in a cycle\n",
			color.Yellow.Sprint("!"), len(cycleErr.Info.CycleParticipants))
	}
	cmd.Printf("%s %v\n", color.Yellow.Sprint("!"), err)
	return 1
}

// reportUnusedCapabilities warns about whitelist identifiers that no type
// embeds or implements.
func reportUnusedCapabilities(cmd *cobra.Command, cfg *config.Config, h *graph.Hierarchy) int {
	warnings := 0
	for _, id := range cfg.Whitelist {
		if h.InDegree(id) > 0 {
			continue
		}
		if h.IsDeclared(id) {
			cmd.Printf("%s Capability %s is declared but nothing implements it\n", color.Yellow.Sprint("!"), id)
		} else {
			cmd.Printf("%s Capability %s is not declared in any source\n", color.Yellow.Sprint("!"), id)
		}
		warnings++
	}
	return warnings
}

func backendName(cfg *config.Config) string {
	if cfg.State.Backend == "" {
		return config.BackendNone
	}
	return cfg.State.Backend
}
