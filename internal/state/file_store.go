package state

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/dbsmedya/autoreg/internal/logger"
)

// Current schema version - increment when filePayload changes.
const fileSchemaVersion uint16 = 1

type filePayload struct {
	Schema    uint16
	Namespace string
	Names     []string
	SavedAt   time.Time
}

// FileStore keeps one msgpack file per namespace under a directory.
// Thread-safe for concurrent access.
type FileStore struct {
	mu     sync.RWMutex
	dir    string
	logger *logger.Logger
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string, log *logger.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state dir %s: %w", dir, err)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &FileStore{dir: dir, logger: log}, nil
}

func (s *FileStore) pathFor(namespace string) string {
	sum := sha256.Sum256([]byte(namespace))
	return filepath.Join(s.dir, "discovery-"+hex.EncodeToString(sum[:8])+".mp")
}

// Load reads the saved set. Files from another schema version or another
// namespace are treated as absent.
func (s *FileStore) Load(_ context.Context, namespace string) ([]string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.pathFor(namespace))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read state: %w", err)
	}

	var payload filePayload
	if err := msgpack.NewDecoder(bytes.NewReader(data)).Decode(&payload); err != nil {
		return nil, false, fmt.Errorf("failed to decode state: %w", err)
	}

	if payload.Schema != fileSchemaVersion || payload.Namespace != namespace {
		s.logger.Debugw("Ignoring stale state file",
			"schema", payload.Schema,
			"namespace", payload.Namespace,
		)
		return nil, false, nil
	}

	return payload.Names, true, nil
}

// Save replaces the saved set atomically.
func (s *FileStore) Save(_ context.Context, namespace string, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf bytes.Buffer
	err := msgpack.NewEncoder(&buf).Encode(&filePayload{
		Schema:    fileSchemaVersion,
		Namespace: namespace,
		Names:     names,
		SavedAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	return WriteFileAtomic(s.pathFor(namespace), buf.Bytes(), 0o644)
}

func (s *FileStore) Close() error { return nil }
