package db

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrUnavailable marks storage-layer failures (connectivity, timeouts) that a
// caller may retry. Domain precondition failures are never wrapped with it.
var ErrUnavailable = errors.New("db: storage unavailable")

// IsUnavailable reports whether err stems from the database being unreachable
// rather than from a domain precondition. Connection-class PostgreSQL errors
// (SQLSTATE 08xxx), network errors, and deadline expiry all count.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 - connection exceptions.
		return strings.HasPrefix(pgErr.Code, "08")
	}
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}
