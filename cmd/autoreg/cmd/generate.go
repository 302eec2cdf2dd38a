package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/autoreg/internal/verifier"
)

var (
	generateDryRun bool
	generateForce  bool
	generateCheck  bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run one discovery pass and write the registry",
	Long: `Generate loads every configured source, classifies each declaration
against the capability whitelist and writes the generated registry.

The file is rewritten only when the discovery set changed since the last
run (as recorded by the state backend) or the file is missing. An empty
discovery set never removes an existing registry.

Modes:
  --dry-run   print the registry instead of writing it
  --check     fail if the registry on disk is out of date (uses output.verify)
  --force     write even when nothing changed

Example:
  autoreg generate --config autoreg.yaml`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().BoolVar(&generateDryRun, "dry-run", false,
		"Print the generated registry without writing it")
	generateCmd.Flags().BoolVar(&generateForce, "force", false,
		"Write the registry even when the discovery set is unchanged")
	generateCmd.Flags().BoolVar(&generateCheck, "check", false,
		"Verify the registry on disk is up to date without writing it")
	generateCmd.MarkFlagsMutuallyExclusive("dry-run", "check", "force")

	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadValidConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Infow("Starting discovery",
		"namespace", cfg.Namespace,
		"config", GetConfigFile(),
	)

	ctx, cancel := signalContext(commandContext(cmd), func(sig os.Signal) {
		log.Warnw("Received shutdown signal, cancelling pass", "signal", sig.String())
	})
	defer cancel()

	s, err := newSession(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer s.Close()

	out, err := s.pass(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("Discovery cancelled; nothing written")
			return nil
		}
		return fmt.Errorf("discovery failed: %w", err)
	}
	res := out.Result

	switch {
	case generateDryRun:
		if res.Artifact == nil {
			cmd.Println("// no types discovered")
			return nil
		}
		cmd.Print(string(res.Artifact.Content))
		return nil

	case generateCheck:
		v, err := verifier.NewVerifier(verifier.Method(cfg.Output.Verify), log)
		if err != nil {
			return err
		}
		vr, err := v.Verify(cfg.OutputPath(), res.Artifact)
		if err != nil {
			return err
		}
		cmd.Printf("%s is up to date (%d types, method=%s)\n", vr.Path, len(res.Set), vr.Method)
		return nil
	}

	written, err := s.write(ctx, res, generateForce)
	if err != nil {
		return err
	}

	cmd.Printf("\n=== Discovery Complete ===\n")
	cmd.Printf("Namespace:     %s\n", cfg.Namespace)
	cmd.Printf("Files:         %d (%d skipped)\n", len(out.Report.Files), len(out.Report.Skipped))
	cmd.Printf("Declarations:  %d\n", res.Stats.Declarations)
	cmd.Printf("Discovered:    %d\n", len(res.Set))
	cmd.Printf("Changed:       %v\n", res.Changed)
	cmd.Printf("Written:       %v (%s)\n", written, cfg.OutputPath())
	cmd.Printf("Duration:      %s\n", res.Stats.Duration)
	return nil
}
