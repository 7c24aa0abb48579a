package database

import (
	"errors"
	"strings"

	"github.com/lib/pq"
)

// IsUniqueViolation reports whether err is a unique-constraint violation
// involving the given column. Postgres surfaces the constraint name via
// the driver error code; SQLite (used by the tests) reports the columns
// in the message text. The column check distinguishes the seat-slot
// constraint from the order-number one on the same table.
func IsUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" && strings.Contains(pqErr.Constraint+pqErr.Detail, column)
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") && strings.Contains(msg, column)
}
