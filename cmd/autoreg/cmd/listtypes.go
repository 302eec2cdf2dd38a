package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/autoreg/internal/pipeline"
	"github.com/dbsmedya/autoreg/internal/source"
)

var listTypesAll bool

var listTypesCmd = &cobra.Command{
	Use:   "list-types",
	Short: "List declarations found in the configured sources",
	Long: `List-types displays the declarations the source frontends found,
in load order. By default only discovery candidates (non-generic concrete
types) are listed; --all includes interfaces and generic types.

Example:
  autoreg list-types --config autoreg.yaml --all`,
	RunE: runListTypes,
}

func init() {
	listTypesCmd.Flags().BoolVar(&listTypesAll, "all", false,
		"Include interfaces and generic types")

	rootCmd.AddCommand(listTypesCmd)
}

func runListTypes(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadValidConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	table, report, err := source.NewLoader(cfg, log).Load(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("failed to load sources: %w", err)
	}

	shown := 0
	for _, d := range table.All() {
		if !listTypesAll && (d.IsInterface() || !pipeline.IsCandidate(d)) {
			continue
		}
		shown++

		cmd.Printf("%d. %s\n", shown, d.QualifiedName())
		cmd.Printf("   Kind:        %s\n", d.Kind)
		if d.HasTypeParams() {
			cmd.Printf("   Type Params: %v\n", d.TypeParams)
		}
		if pos := d.Position(); pos != "" {
			cmd.Printf("   Position:    %s\n", pos)
		}
		if len(d.Implements) > 0 {
			cmd.Printf("   Implements:  %v\n", d.Implements)
		}
		if len(d.Embeds) > 0 {
			cmd.Printf("   Embeds:      %v\n", d.Embeds)
		}
		if d.Abstract {
			cmd.Printf("   Abstract:    true\n")
		}
		if d.OptOut {
			cmd.Printf("   Opt-out:     true\n")
		}
	}

	if shown == 0 {
		cmd.Printf("No types found under %s\n", cfg.Sources.Root)
		return nil
	}
	cmd.Printf("\nTotal: %d type(s) in %d file(s)\n", shown, len(report.Files))
	return nil
}
