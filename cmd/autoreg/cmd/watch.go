package cmd

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/autoreg/internal/watch"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Regenerate the registry whenever sources change",
	Long: `Watch runs one discovery pass at start and another after every
debounced batch of changes to files matching sources.include.

Changes arriving while a pass runs are coalesced into the next pass.
Ctrl-C cancels the running pass; a cancelled pass writes nothing.

Example:
  autoreg watch --config autoreg.yaml --debounce 500ms`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 0,
		"Quiet period before a pass (default watch.debounce_ms)")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadValidConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := signalContext(commandContext(cmd), func(sig os.Signal) {
		log.Warnw("Received shutdown signal, stopping watch", "signal", sig.String())
	})
	defer cancel()

	s, err := newSession(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer s.Close()

	runPass := func(ctx context.Context) error {
		passCtx, passCancel := context.WithCancel(ctx)
		defer passCancel()

		out, err := s.pass(passCtx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Warn("Pass cancelled; nothing written")
				return nil
			}
			return err
		}
		_, err = s.write(passCtx, out.Result, false)
		return err
	}

	if err := runPass(ctx); err != nil {
		log.Errorw("Initial pass failed", "error", err)
	}

	debounce := watchDebounce
	if debounce <= 0 {
		debounce = time.Duration(cfg.Watch.DebounceMS) * time.Millisecond
	}

	w, err := watch.New(watch.Config{
		Root:     s.loader.Root(),
		Match:    s.loader.Matcher().Match,
		Ignore:   cfg.Watch.Ignore,
		Debounce: debounce,
		Logger:   log,
		OnChange: func(ctx context.Context, changed []string) error {
			log.WithFields(map[string]interface{}{
				"files": len(changed),
				"first": changed[0],
			}).Info("Sources changed")
			return runPass(ctx)
		},
	})
	if err != nil {
		return err
	}

	log.Infow("Watching for changes", "root", s.loader.Root(), "debounce", debounce)
	return w.Run(ctx)
}
