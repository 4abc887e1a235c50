package storage

import (
	"context"
	"database/sql"
	"hash/fnv"
	"sync"

	"go.uber.org/zap"
)

// AdvisoryLock is a named, non-blocking mutex shared by every worker process
// that talks to the same Postgres instance.
//
// The lock is session-scoped: it is taken on a dedicated connection checked
// out of the pool, separate from the one business queries run on, so it can
// never outlive its owner beyond the lifetime of that connection. If the
// process dies, Postgres drops the session and the lock with it.
type AdvisoryLock struct {
	db     *sql.DB
	logger *zap.Logger

	mu   sync.Mutex
	conn *sql.Conn
	key  int64
}

func NewAdvisoryLock(db *sql.DB, logger *zap.Logger) *AdvisoryLock {
	return &AdvisoryLock{db: db, logger: logger}
}

// TryAcquire attempts to take the named lock without waiting. It returns
// false immediately when another session holds the lock, and fails closed:
// any error talking to the backing store also counts as "not acquired".
func (l *AdvisoryLock) TryAcquire(ctx context.Context, name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		return false
	}

	conn, err := l.db.Conn(ctx)
	if err != nil {
		l.logger.Warn("lock connection unavailable", zap.String("lock", name), zap.Error(err))
		return false
	}

	key := lockKey(name)
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&acquired); err != nil {
		l.logger.Warn("lock acquisition failed", zap.String("lock", name), zap.Error(err))
		_ = conn.Close()
		return false
	}

	if !acquired {
		_ = conn.Close()
		return false
	}

	l.conn = conn
	l.key = key
	return true
}

// Release frees the lock taken by a successful TryAcquire. Closing the
// dedicated connection drops the session lock even when the explicit unlock
// call fails, so release can never leave the lock stuck.
func (l *AdvisoryLock) Release(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return
	}

	if _, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.key); err != nil {
		l.logger.Warn("advisory unlock failed, dropping lock connection", zap.Error(err))
	}
	_ = l.conn.Close()
	l.conn = nil
}

func lockKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}
