package dbopen

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Retry policy of RunTx: attempts, and the linear backoff step between them.
const (
	txAttempts = 4
	txBackoff  = 50 * time.Millisecond
)

// SQLite primary result codes for a contended database.
const (
	sqliteBusy   = 5
	sqliteLocked = 6
)

// RunTx runs fn in a transaction and commits it. When SQLite reports the
// database busy the whole transaction is retried, so fn must not have side
// effects outside tx. Any other error from fn rolls back and is returned
// as is.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	var err error
	for attempt := 1; attempt <= txAttempts; attempt++ {
		if err = once(ctx, db, fn); err == nil || !busy(err) {
			return err
		}
		wait := time.NewTimer(time.Duration(attempt) * txBackoff)
		select {
		case <-ctx.Done():
			wait.Stop()
			return fmt.Errorf("dbopen: gave up waiting for a busy database: %w", ctx.Err())
		case <-wait.C:
		}
	}
	return fmt.Errorf("dbopen: database still busy after %d attempts: %w", txAttempts, err)
}

func once(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dbopen: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dbopen: commit: %w", err)
	}
	return nil
}

// busy reports SQLITE_BUSY and SQLITE_LOCKED, extended codes included.
// Errors that lost their driver type are matched on the message.
func busy(err error) bool {
	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		switch coded.Code() & 0xff {
		case sqliteBusy, sqliteLocked:
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}
