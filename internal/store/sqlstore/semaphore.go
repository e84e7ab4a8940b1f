package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/quartz/internal/logger"
)

// Lock names coordinating multi-row mutations across the cluster.
const (
	LockTriggerAccess = "TRIGGER_ACCESS"
	LockStateAccess   = "STATE_ACCESS"
)

const (
	// DefaultLockMaxRetry bounds insert-and-retry attempts when the lock
	// row does not exist yet.
	DefaultLockMaxRetry = 3

	// DefaultLockRetryPeriod is the pause between those attempts.
	DefaultLockRetryPeriod = time.Second
)

// ErrLockNotObtained is returned when the lock row could not be taken
// after all retries.
var ErrLockNotObtained = errors.New("row lock not obtained")

// rowLockSemaphore takes named row locks in the LOCKS table. A lock is
// held until the surrounding transaction commits or rolls back; within
// one session re-acquisition is a no-op.
type rowLockSemaphore struct {
	dialect     Dialect
	schedName   string
	insertSQL   string
	lockSQL     string
	lockIsUpd   bool
	maxRetry    int
	retryPeriod time.Duration
	log         logger.Interface
}

func newRowLockSemaphore(dialect Dialect, prefix, schedName string, maxRetry int, retryPeriod time.Duration, log logger.Interface) *rowLockSemaphore {
	if maxRetry <= 0 {
		maxRetry = DefaultLockMaxRetry
	}
	if retryPeriod <= 0 {
		retryPeriod = DefaultLockRetryPeriod
	}
	lockSQL, isUpd := dialect.LockQuery(prefix)
	return &rowLockSemaphore{
		dialect:     dialect,
		schedName:   schedName,
		insertSQL:   "INSERT INTO " + prefix + "locks (sched_name, lock_name) VALUES (?, ?)",
		lockSQL:     lockSQL,
		lockIsUpd:   isUpd,
		maxRetry:    maxRetry,
		retryPeriod: retryPeriod,
		log:         log,
	}
}

// obtain takes lockName inside the session's transaction, inserting the
// lock row when missing. Reentrant per session.
func (l *rowLockSemaphore) obtain(ctx context.Context, sess *session, lockName string) error {
	if _, held := sess.owned[lockName]; held {
		return nil
	}
	for attempt := 1; ; attempt++ {
		locked, err := l.tryLockRow(ctx, sess.tx, lockName)
		if err != nil {
			return fmt.Errorf("obtain lock %q: %w", lockName, err)
		}
		if locked {
			sess.owned[lockName] = struct{}{}
			return nil
		}

		// Row missing: seat it and go around again. A unique violation
		// means a peer seated it first, which is fine. The savepoint
		// keeps an insert failure from aborting the transaction.
		if _, err := sess.tx.ExecContext(ctx, l.dialect.SavepointSQL("qrtz_lock")); err != nil {
			return fmt.Errorf("obtain lock %q: savepoint: %w", lockName, err)
		}
		if _, insErr := sess.tx.ExecContext(ctx, sess.tx.Rebind(l.insertSQL), l.schedName, lockName); insErr != nil {
			l.log.Debug("lock row insert failed, retrying select",
				"lock", lockName, "attempt", attempt, "error", insErr)
			if _, err := sess.tx.ExecContext(ctx, l.dialect.RollbackToSavepointSQL("qrtz_lock")); err != nil {
				return fmt.Errorf("obtain lock %q: rollback to savepoint: %w", lockName, err)
			}
		}
		if attempt >= l.maxRetry {
			return fmt.Errorf("obtain lock %q after %d attempts: %w", lockName, attempt, ErrLockNotObtained)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryPeriod):
		}
	}
}

// tryLockRow executes the dialect's lock statement. It reports false when
// the lock row does not exist.
func (l *rowLockSemaphore) tryLockRow(ctx context.Context, tx *sqlx.Tx, lockName string) (bool, error) {
	query := tx.Rebind(l.lockSQL)
	if l.lockIsUpd {
		res, err := tx.ExecContext(ctx, query, l.schedName, lockName)
		if err != nil {
			return false, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, err
		}
		return n > 0, nil
	}

	var name string
	err := tx.GetContext(ctx, &name, query, l.schedName, lockName)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
