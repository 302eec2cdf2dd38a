// Package lock provides MySQL advisory locking for the mysql state backend.
package lock

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrLockTimeout is returned when lock acquisition times out because
// another instance is holding the lock.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// Common timeout values for lock acquisition (in seconds).
const (
	// TimeoutImmediate returns immediately if lock cannot be acquired (no wait).
	TimeoutImmediate = 0

	// TimeoutMedium provides a reasonable wait for another generator to finish.
	TimeoutMedium = 10

	// TimeoutInfinite waits indefinitely until the lock is acquired.
	// Note: MySQL treats negative values as infinite wait.
	TimeoutInfinite = -1
)

// maxLockNameLen is MySQL's limit on advisory lock names.
const maxLockNameLen = 64

// Querier is the subset of *sql.DB, *sql.Conn and *sql.Tx used here.
// GET_LOCK is scoped to a session, so callers that need the lock to cover
// other statements must pass a pinned *sql.Conn.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// AdvisoryLock represents a MySQL advisory lock. It uses GET_LOCK() to
// acquire a named lock that is released when the session ends or
// RELEASE_LOCK() is called.
type AdvisoryLock struct {
	q        Querier
	lockName string
	held     bool
}

// NewAdvisoryLock creates a new advisory lock with the given name.
// The lock is not acquired until AcquireLock is called.
func NewAdvisoryLock(q Querier, lockName string) *AdvisoryLock {
	return &AdvisoryLock{
		q:        q,
		lockName: lockName,
		held:     false,
	}
}

// NewNamespaceLock creates the lock that serializes state writes for one
// registry namespace.
func NewNamespaceLock(q Querier, namespace string) *AdvisoryLock {
	return NewAdvisoryLock(q, NamespaceLockName(namespace))
}

// AcquireLock attempts to acquire the advisory lock with the specified timeout.
// Returns true if the lock was acquired, false if timeout was reached.
// Returns an error if the database query fails.
//
// MySQL GET_LOCK() return values:
//   - 1: Lock was obtained successfully
//   - 0: Timeout was reached without obtaining the lock
//   - NULL: An error occurred (e.g., out of memory, thread killed)
func (a *AdvisoryLock) AcquireLock(ctx context.Context, timeoutSeconds int) (bool, error) {
	if a.held {
		return true, nil // Already holding the lock
	}

	var result sql.NullInt64
	err := a.q.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", a.lockName, timeoutSeconds).Scan(&result)
	if err != nil {
		return false, fmt.Errorf("failed to execute GET_LOCK: %w", err)
	}

	// Check if result is NULL (error case)
	if !result.Valid {
		return false, fmt.Errorf("GET_LOCK returned NULL for lock %q (possible database error)", a.lockName)
	}

	switch result.Int64 {
	case 1:
		a.held = true
		return true, nil
	case 0:
		// Timeout reached - another instance is holding the lock
		return false, nil
	default:
		return false, fmt.Errorf("unexpected GET_LOCK return value: %d", result.Int64)
	}
}

// ReleaseLock releases the advisory lock.
// Returns true if the lock was released, false if it was not held.
//
// MySQL RELEASE_LOCK() return values:
//   - 1: Lock was released successfully
//   - 0: Lock was not established by this thread (not held)
//   - NULL: Named lock did not exist
func (a *AdvisoryLock) ReleaseLock(ctx context.Context) (bool, error) {
	if !a.held {
		return false, nil // Not holding the lock
	}

	var result sql.NullInt64
	err := a.q.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", a.lockName).Scan(&result)
	if err != nil {
		return false, fmt.Errorf("failed to execute RELEASE_LOCK: %w", err)
	}

	if !result.Valid {
		a.held = false
		return false, fmt.Errorf("RELEASE_LOCK returned NULL for lock %q (lock did not exist)", a.lockName)
	}

	switch result.Int64 {
	case 1:
		a.held = false
		return true, nil
	case 0:
		a.held = false
		return false, nil
	default:
		return false, fmt.Errorf("unexpected RELEASE_LOCK return value: %d", result.Int64)
	}
}

// IsHeld returns true if this lock is currently held by this instance.
func (a *AdvisoryLock) IsHeld() bool {
	return a.held
}

// LockName returns the name of the advisory lock.
func (a *AdvisoryLock) LockName() string {
	return a.lockName
}

// TryAcquire attempts to acquire the lock immediately without waiting.
func (a *AdvisoryLock) TryAcquire(ctx context.Context) (bool, error) {
	return a.AcquireLock(ctx, TimeoutImmediate)
}

// NamespaceLockName creates a consistent lock name for a registry namespace:
// "autoreg:{namespace}". Characters outside [A-Za-z0-9_./-] become '_'.
// Names longer than MySQL's 64 character limit are shortened to a hash.
//
// Example: NamespaceLockName("example.com/app/registry") -> "autoreg:example.com/app/registry"
func NamespaceLockName(namespace string) string {
	sanitized := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
			r == '_' || r == '-' || r == '.' || r == '/' {
			return r
		}
		return '_'
	}, namespace)

	name := "autoreg:" + sanitized
	if len(name) <= maxLockNameLen {
		return name
	}

	sum := sha256.Sum256([]byte(namespace))
	return "autoreg:" + hex.EncodeToString(sum[:])[:maxLockNameLen-len("autoreg:")]
}

// WithLock executes fn while holding the lock, releasing it afterwards
// even if fn panics.
//
// Returns:
//   - ErrLockTimeout if lock cannot be acquired within timeout
//   - Any error returned by the function
func (a *AdvisoryLock) WithLock(ctx context.Context, timeoutSeconds int, fn func() error) error {
	acquired, err := a.AcquireLock(ctx, timeoutSeconds)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("%w: lock %q is held by another instance", ErrLockTimeout, a.lockName)
	}

	defer func() {
		// Release in a separate context so a cancelled caller still unlocks.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		// The lock also auto-releases when the session closes.
		_, _ = a.ReleaseLock(releaseCtx)
	}()

	return fn()
}
