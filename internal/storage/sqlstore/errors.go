// internal/storage/sqlstore/errors.go
package sqlstore

import (
	"errors"
	"fmt"
	"libradesk/internal/storage"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	return false
}

func wrapWrite(op string, err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", storage.ErrDuplicate, op)
	}
	return fmt.Errorf("%s: %w", op, err)
}
