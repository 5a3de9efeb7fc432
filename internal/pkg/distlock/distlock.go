// Package distlock provides a best-effort mutual exclusion lock shared by
// every worker process, so periodic jobs such as the stale-claim sweep run
// on one host at a time.
package distlock

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock is a non-blocking distributed lock. A Lock value belongs to one
// holder; use separate instances for separate goroutines.
type Lock interface {
	// TryAcquire returns true if the caller now holds the lock.
	TryAcquire(ctx context.Context) (bool, error)
	// Release gives the lock up if it is still held by this instance.
	Release(ctx context.Context) error
}

// New returns a Redis lock when client is non-nil and a PostgreSQL advisory
// lock otherwise.
func New(client *redis.Client, db *sql.DB, key string, ttl time.Duration) Lock {
	if client != nil {
		return NewRedisLock(client, key, ttl)
	}
	return NewAdvisoryLock(db, key)
}

// Run calls fn only if l can be acquired, and releases it afterwards. It
// reports whether fn ran.
func Run(ctx context.Context, l Lock, fn func(ctx context.Context) error) (bool, error) {
	ok, err := l.TryAcquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return false, nil
	}
	defer l.Release(context.WithoutCancel(ctx))
	return true, fn(ctx)
}

// AdvisoryLock uses pg_try_advisory_lock. The lock is session-scoped, so
// the acquiring connection is pinned until Release and the server drops the
// lock if that connection dies.
type AdvisoryLock struct {
	db   *sql.DB
	key  int64
	conn *sql.Conn
}

// NewAdvisoryLock derives the advisory lock key from an FNV-64a hash of name.
func NewAdvisoryLock(db *sql.DB, name string) *AdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(name))
	return &AdvisoryLock{db: db, key: int64(h.Sum64())}
}

func (l *AdvisoryLock) TryAcquire(ctx context.Context) (bool, error) {
	if l.conn != nil {
		return false, nil
	}
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("advisory lock %d: %w", l.key, err)
	}
	var ok bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, l.key).Scan(&ok); err != nil {
		conn.Close()
		return false, fmt.Errorf("advisory lock %d: %w", l.key, err)
	}
	if !ok {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

func (l *AdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	conn := l.conn
	l.conn = nil
	defer conn.Close()
	_, err := conn.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, l.key)
	return err
}
