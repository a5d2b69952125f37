package leaderelection

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresLocker uses pg_try_advisory_lock on a dedicated connection.
type PostgresLocker struct {
	db  *sql.DB
	key int64
}

func NewPostgresLocker(db *sql.DB, key int64) *PostgresLocker {
	return &PostgresLocker{db: db, key: key}
}

func (l *PostgresLocker) Name() string {
	return fmt.Sprintf("pg_advisory(%d)", l.key)
}

func (l *PostgresLocker) TryAcquire(ctx context.Context) (Lease, bool, error) {
	// Advisory lock is session-scoped: must use a dedicated connection.
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("dedicated connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.key).Scan(&acquired); err != nil {
		conn.Close()
		return nil, false, fmt.Errorf("advisory lock query: %w", err)
	}
	if !acquired {
		conn.Close()
		return nil, false, nil
	}
	return &pgLease{conn: conn, key: l.key}, true, nil
}

type pgLease struct {
	conn *sql.Conn
	key  int64
}

func (l *pgLease) Ping(ctx context.Context) error {
	return l.conn.PingContext(ctx)
}

// Release unlocks explicitly and returns the connection to the pool. Closing
// a dead connection is enough; Postgres drops the lock with the session.
func (l *pgLease) Release(ctx context.Context) error {
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.key)
	if cerr := l.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

// StandaloneLocker always grants leadership. It is meant for single-process
// deployments such as the sqlite driver.
type StandaloneLocker struct{}

func (StandaloneLocker) Name() string { return "standalone" }

func (StandaloneLocker) TryAcquire(ctx context.Context) (Lease, bool, error) {
	return standaloneLease{}, true, nil
}

type standaloneLease struct{}

func (standaloneLease) Ping(ctx context.Context) error    { return nil }
func (standaloneLease) Release(ctx context.Context) error { return nil }
