// Package state persists the previous discovery set between processes so a
// fresh run can tell whether the registry changed.
package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/dbsmedya/autoreg/internal/config"
	"github.com/dbsmedya/autoreg/internal/database"
	"github.com/dbsmedya/autoreg/internal/logger"
)

// Store loads and saves the discovery set of a namespace.
type Store interface {
	// Load returns the saved set and true, or false when nothing is saved.
	Load(ctx context.Context, namespace string) ([]string, bool, error)
	// Save replaces the saved set.
	Save(ctx context.Context, namespace string, names []string) error
	Close() error
}

// Open creates the store selected by cfg.State.Backend.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (Store, error) {
	if log == nil {
		log = logger.NewNop()
	}

	switch cfg.State.Backend {
	case config.BackendNone, "":
		return NewMemoryStore(), nil
	case config.BackendFile:
		return NewFileStore(cfg.State.Dir, log)
	case config.BackendMySQL:
		mgr := database.NewManager(&cfg.State.Database)
		if err := mgr.Connect(ctx); err != nil {
			return nil, err
		}
		store, err := NewMySQLStore(mgr, cfg.State.Table, cfg.State.LockTimeout, log)
		if err != nil {
			mgr.Close()
			return nil, err
		}
		if err := store.InitializeTables(ctx); err != nil {
			mgr.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.State.Backend)
	}
}

// MemoryStore keeps sets for the lifetime of the process only.
type MemoryStore struct {
	mu   sync.Mutex
	sets map[string][]string
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sets: make(map[string][]string)}
}

func (m *MemoryStore) Load(_ context.Context, namespace string) ([]string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names, ok := m.sets[namespace]
	return slices.Clone(names), ok, nil
}

func (m *MemoryStore) Save(_ context.Context, namespace string, names []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets[namespace] = slices.Clone(names)
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// WriteFileAtomic writes data to a temp file next to path and renames it
// into place, so readers never observe a partial file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp := f.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmp)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := f.Chmod(perm); err != nil {
		f.Close()
		return fmt.Errorf("failed to chmod %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	committed = true
	return nil
}
