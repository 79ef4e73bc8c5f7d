package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// runLockKey is the advisory lock id for the batch job. Fixed by name so
// every process competing for a run agrees on it.
const runLockKey int64 = 0x4c454144 // "LEAD"

// RunLock holds a session-scoped advisory lock for the duration of a batch
// run. The underlying connection is pinned until Release.
type RunLock struct {
	conn *pgxpool.Conn
}

// TryRunLock attempts to take the single-flight batch lock. Returns
// ok=false without error when another run already holds it.
func (s *Store) TryRunLock(ctx context.Context) (*RunLock, bool, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", runLockKey).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}
	return &RunLock{conn: conn}, true, nil
}

// AcquireRunLock is the function-valued form of TryRunLock used by the
// batch engine.
func (s *Store) AcquireRunLock(ctx context.Context) (func(context.Context) error, bool, error) {
	lock, ok, err := s.TryRunLock(ctx)
	if err != nil || !ok {
		return nil, ok, err
	}
	return lock.Release, true, nil
}

func (l *RunLock) Release(ctx context.Context) error {
	defer l.conn.Release()
	if _, err := l.conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", runLockKey); err != nil {
		return fmt.Errorf("release advisory lock: %w", err)
	}
	return nil
}
