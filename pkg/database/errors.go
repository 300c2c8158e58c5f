package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/lib/pq"
)

// Postgres SQLSTATE codes the sync pipeline reacts to.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeQueryCanceled       = "57014"
)

func pqError(err error) (*pq.Error, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr, true
	}
	return nil, false
}

func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func IsUniqueViolation(err error) bool {
	pqErr, ok := pqError(err)
	return ok && string(pqErr.Code) == codeUniqueViolation
}

func IsForeignKeyViolation(err error) bool {
	pqErr, ok := pqError(err)
	return ok && string(pqErr.Code) == codeForeignKeyViolation
}

// IsTimeout reports a statement or context deadline, including Postgres
// statement_timeout cancellations.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	pqErr, ok := pqError(err)
	return ok && string(pqErr.Code) == codeQueryCanceled
}

// IsUnavailable reports errors that mean the database cannot be reached at
// all, as opposed to a statement failing.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	if pqErr, ok := pqError(err); ok {
		class := string(pqErr.Code.Class())
		// 08: connection exception, 57P: operator intervention (shutdown)
		return class == "08" || strings.HasPrefix(string(pqErr.Code), "57P")
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
