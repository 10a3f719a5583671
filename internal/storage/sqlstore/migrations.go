// internal/storage/sqlstore/migrations.go
package sqlstore

import (
	"context"
	"fmt"
)

// Column types are kept to the subset PostgreSQL and SQLite both accept.
// Loans carry no foreign keys so history survives catalog deletes.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS books (
		isbn      VARCHAR(32) PRIMARY KEY,
		seq       BIGINT NOT NULL,
		title     TEXT NOT NULL,
		author    TEXT NOT NULL,
		year      INTEGER NOT NULL DEFAULT 0,
		publisher TEXT NOT NULL DEFAULT '',
		status    VARCHAR(16) NOT NULL DEFAULT 'AVAILABLE'
	)`,
	`CREATE TABLE IF NOT EXISTS readers (
		subscriber_number VARCHAR(32) PRIMARY KEY,
		seq               BIGINT NOT NULL,
		first_name        TEXT NOT NULL,
		last_name         TEXT NOT NULL,
		email             TEXT NOT NULL DEFAULT '',
		max_loan_days     INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS loans (
		id                       VARCHAR(64) PRIMARY KEY,
		seq                      BIGINT NOT NULL,
		book_isbn                VARCHAR(32) NOT NULL,
		reader_subscriber_number VARCHAR(32) NOT NULL,
		borrow_date              DATE NOT NULL,
		due_date                 DATE NOT NULL,
		returned                 BOOLEAN NOT NULL DEFAULT FALSE,
		return_date              DATE
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS loans_one_open_per_book ON loans (book_isbn) WHERE returned = FALSE`,
	`CREATE INDEX IF NOT EXISTS loans_by_reader ON loans (reader_subscriber_number)`,
	`CREATE INDEX IF NOT EXISTS loans_by_due_date ON loans (due_date)`,
}

// eventsTable lets the database number journal entries, so concurrent
// processes never compute the same seq.
func eventsTable(driver string) string {
	seq := "seq BIGSERIAL PRIMARY KEY"
	if driver == DriverSQLite {
		seq = "seq INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	return `CREATE TABLE IF NOT EXISTS circulation_events (
		` + seq + `,
		event_type  VARCHAR(64) NOT NULL,
		subject_id  VARCHAR(64) NOT NULL,
		data        TEXT NOT NULL,
		occurred_at TIMESTAMP NOT NULL
	)`
}

// Migrate creates the tables and indexes if they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	ctx, span := startSpan(ctx, "sqlstore.migrate")
	defer span.End()

	stmts := append(append([]string(nil), schema...), eventsTable(s.driver))
	for i, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i+1, err)
		}
	}

	s.log.Info("schema is up to date")
	return nil
}
