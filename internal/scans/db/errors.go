package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/lib/pq"
	"github.com/uptrace/bun/driver/pgdriver"
)

var ErrSlotNotFound = errors.New("qr slot not found")

// PostgreSQL SQLSTATE codes the scan pipeline cares about.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	classConnectionException = "08"
)

// sqlState extracts the SQLSTATE code from lib/pq and pgdriver errors.
func sqlState(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C')
	}
	return ""
}

// IsUniqueViolation reports whether err is a unique constraint failure.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if sqlState(err) == codeUniqueViolation {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsConstraintViolation reports any integrity constraint failure.
func IsConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	if code := sqlState(err); strings.HasPrefix(code, "23") {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "constraint failed")
}

// IsTransient reports failures that are worth retrying as a whole
// transaction: serialization conflicts, deadlocks, lock timeouts, dropped or
// refused connections and SQLite busy errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	switch code := sqlState(err); {
	case code == codeSerializationFailure, code == codeDeadlockDetected, code == codeLockNotAvailable:
		return true
	case strings.HasPrefix(code, classConnectionException):
		return true
	case code != "":
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}
