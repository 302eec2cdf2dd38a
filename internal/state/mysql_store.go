package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/dbsmedya/autoreg/internal/database"
	"github.com/dbsmedya/autoreg/internal/decl"
	"github.com/dbsmedya/autoreg/internal/lock"
	"github.com/dbsmedya/autoreg/internal/logger"
	"github.com/dbsmedya/autoreg/internal/sqlutil"
)

// ErrLockTimeout is returned by Save when another generator holds the
// namespace lock past the configured timeout.
var ErrLockTimeout = lock.ErrLockTimeout

// DefaultTable is the state table used when none is configured.
const DefaultTable = "autoreg_discovery"

const createDiscoveryTableSQL = `
CREATE TABLE IF NOT EXISTS %s (
	namespace VARCHAR(255) PRIMARY KEY,
	names MEDIUMBLOB NOT NULL,
	digest CHAR(64) NOT NULL,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
) ENGINE=InnoDB;
`

const upsertDiscoverySQL = `INSERT INTO %s (namespace, names, digest) VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE names = VALUES(names), digest = VALUES(digest)`

const selectDiscoverySQL = `SELECT names FROM %s WHERE namespace = ?`

// MySQLStore keeps discovery sets in a state table. Writes for a namespace
// are serialized across processes with an advisory lock held on a pinned
// connection.
type MySQLStore struct {
	db          *sql.DB
	mgr         *database.Manager
	table       string // raw name, for messages
	quoted      string
	lockTimeout int
	logger      *logger.Logger
}

// NewMySQLStore creates a store over a connected manager. An empty table
// selects DefaultTable.
func NewMySQLStore(mgr *database.Manager, table string, lockTimeout int, log *logger.Logger) (*MySQLStore, error) {
	if mgr == nil || mgr.DB == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if table == "" {
		table = DefaultTable
	}
	quoted, err := sqlutil.QuoteIdentifierSafe(table)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &MySQLStore{
		db:          mgr.DB,
		mgr:         mgr,
		table:       table,
		quoted:      quoted,
		lockTimeout: lockTimeout,
		logger:      log,
	}, nil
}

// InitializeTables creates the state table if it doesn't exist.
// This method is idempotent and safe to call on every startup.
func (s *MySQLStore) InitializeTables(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(createDiscoveryTableSQL, s.quoted)); err != nil {
		return fmt.Errorf("failed to create %s table: %w", s.table, err)
	}
	s.logger.Debug("State table initialized")
	return nil
}

// Load reads the saved set for namespace.
func (s *MySQLStore) Load(ctx context.Context, namespace string) ([]string, bool, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(selectDiscoverySQL, s.quoted),
		namespace,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load discovery set: %w", err)
	}

	var names []string
	if err := msgpack.Unmarshal(blob, &names); err != nil {
		return nil, false, fmt.Errorf("failed to decode discovery set: %w", err)
	}
	return names, true, nil
}

// Save upserts the set while holding the namespace lock.
func (s *MySQLStore) Save(ctx context.Context, namespace string, names []string) error {
	blob, err := msgpack.Marshal(names)
	if err != nil {
		return fmt.Errorf("failed to encode discovery set: %w", err)
	}
	digest := decl.HashStrings(names).String()

	// GET_LOCK is session scoped: lock, write and unlock on one connection.
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to pin connection: %w", err)
	}
	defer conn.Close()

	l := lock.NewNamespaceLock(conn, namespace)
	err = l.WithLock(ctx, s.lockTimeout, func() error {
		if _, err := conn.ExecContext(ctx, fmt.Sprintf(upsertDiscoverySQL, s.quoted), namespace, blob, digest); err != nil {
			return fmt.Errorf("failed to save discovery set: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debugw("Discovery set saved",
		"namespace", namespace,
		"types", len(names),
		"digest", digest[:12],
	)
	return nil
}

// Close closes the underlying connection pool.
func (s *MySQLStore) Close() error {
	return s.mgr.Close()
}
