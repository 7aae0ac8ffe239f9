package scheduler

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultLockKey — ключ advisory lock лидера scheduler'а.
const DefaultLockKey int64 = 424242

// Leader решает, выполняет ли этот экземпляр тики.
type Leader interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LockDB — часть pgxpool.Pool, нужная для advisory lock.
type LockDB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AdvisoryLock — лидерство через pg_try_advisory_lock.
//
// Lock сессионный: pgxpool должен держать соединение, поэтому
// для scheduler'а пул создаётся с MaxConns = 1.
type AdvisoryLock struct {
	db   LockDB
	key  int64
	held bool
}

// NewAdvisoryLock создаёт AdvisoryLock. key = 0 даёт DefaultLockKey.
func NewAdvisoryLock(db LockDB, key int64) *AdvisoryLock {
	if key == 0 {
		key = DefaultLockKey
	}
	return &AdvisoryLock{db: db, key: key}
}

// TryAcquire пытается стать лидером (или подтверждает лидерство).
func (l *AdvisoryLock) TryAcquire(ctx context.Context) (bool, error) {
	if l.held {
		return true, nil
	}
	var ok bool
	if err := l.db.QueryRow(ctx, "select pg_try_advisory_lock($1)", l.key).Scan(&ok); err != nil {
		return false, err
	}
	l.held = ok
	return ok, nil
}

// Release отпускает lock, если он взят.
func (l *AdvisoryLock) Release(ctx context.Context) error {
	if !l.held {
		return nil
	}
	l.held = false
	_, err := l.db.Exec(ctx, "select pg_advisory_unlock($1)", l.key)
	return err
}
