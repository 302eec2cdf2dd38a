package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dbsmedya/autoreg/internal/config"
	"github.com/dbsmedya/autoreg/internal/logger"
	"github.com/dbsmedya/autoreg/internal/pipeline"
	"github.com/dbsmedya/autoreg/internal/source"
	"github.com/dbsmedya/autoreg/internal/state"
)

// session wires the loader, the pipeline and the state store for one
// generate or watch invocation.
type session struct {
	cfg      *config.Config
	log      *logger.Logger
	loader   *source.Loader
	pipeline *pipeline.Pipeline
	store    state.Store
	unsaved  bool // a committed set has not reached the store yet
}

// passOutcome is one load plus one pipeline pass.
type passOutcome struct {
	Result *pipeline.Result
	Report *source.Report
}

// newSession opens the state store and seeds the pipeline with the set it
// holds for the namespace.
func newSession(ctx context.Context, cfg *config.Config, log *logger.Logger) (*session, error) {
	store, err := state.Open(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	seed, ok, err := store.Load(ctx, cfg.Namespace)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load previous discovery set: %w", err)
	}
	if ok && seed == nil {
		seed = []string{}
	}
	if ok {
		log.Debugw("Seeded from state store", "backend", cfg.State.Backend, "types", len(seed))
	}

	p, err := newPipeline(cfg, log, seed)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &session{
		cfg:      cfg,
		log:      log,
		loader:   source.NewLoader(cfg, log),
		pipeline: p,
		store:    store,
	}, nil
}

func newPipeline(cfg *config.Config, log *logger.Logger, seed []string) (*pipeline.Pipeline, error) {
	p, err := pipeline.New(pipeline.Options{
		Whitelist: pipeline.NewWhitelist(cfg.Whitelist...),
		Namespace: cfg.Namespace,
		Package:   cfg.PackageName(),
		FileName:  cfg.Output.File,
		Workers:   cfg.Pipeline.Workers,
		MemoSize:  cfg.Pipeline.MemoSize,
		Seed:      seed,
		Logger:    log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	return p, nil
}

// pass loads every source and runs one pipeline generation.
func (s *session) pass(ctx context.Context) (*passOutcome, error) {
	table, report, err := s.loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.pipeline.Run(ctx, table)
	if err != nil {
		return nil, err
	}
	return &passOutcome{Result: res, Report: report}, nil
}

// write stores the artifact of res whenever the file on disk is missing or
// differs from it, or when force is set. An empty set never removes an
// existing file.
// It reports whether the file was written.
func (s *session) write(ctx context.Context, res *pipeline.Result, force bool) (bool, error) {
	path := s.cfg.OutputPath()
	written := false
	if res.Changed {
		s.unsaved = true
	}

	if res.Artifact == nil {
		if _, err := os.Stat(path); err == nil {
			s.log.Warnw("No types discovered; leaving existing registry in place", "path", path)
		} else {
			s.log.Warn("No types discovered; nothing to write")
		}
	} else {
		existing, readErr := os.ReadFile(path)
		if readErr != nil && !errors.Is(readErr, fs.ErrNotExist) {
			return false, fmt.Errorf("failed to read registry: %w", readErr)
		}
		identical := readErr == nil && bytes.Equal(existing, res.Artifact.Content)

		if force || !identical {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return false, fmt.Errorf("failed to create output directory: %w", err)
			}
			if err := state.WriteFileAtomic(path, res.Artifact.Content, 0o644); err != nil {
				return false, err
			}
			written = true
			s.log.Infow("Registry written", "path", path, "types", len(res.Set))
		} else {
			s.log.Infow("Registry unchanged", "path", path, "types", len(res.Set))
		}
	}

	if s.unsaved {
		if err := s.store.Save(ctx, s.cfg.Namespace, res.Set); err != nil {
			return written, fmt.Errorf("failed to save discovery set: %w", err)
		}
		s.unsaved = false
	}
	return written, nil
}

func (s *session) Close() error {
	return s.store.Close()
}
