// internal/storage/sqlstore/repo.go
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"libradesk/internal/catalog"
	"libradesk/internal/journal"
	"libradesk/internal/ledger"
	"libradesk/internal/storage"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
)

const (
	tableBooks   = "books"
	tableReaders = "readers"
	tableLoans   = "loans"
	tableEvents  = "circulation_events"

	colSeq = "seq"
)

var (
	bookColumns   = []interface{}{"isbn", "title", "author", "year", "publisher", "status"}
	readerColumns = []interface{}{"subscriber_number", "first_name", "last_name", "email", "max_loan_days"}
	loanColumns   = []interface{}{"id", "book_isbn", "reader_subscriber_number", "borrow_date", "due_date", "returned", "return_date"}
	eventColumns  = []interface{}{"seq", "event_type", "subject_id", "data", "occurred_at"}
)

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

// repo implements storage.Repository on top of a DB or a transaction.
type repo struct {
	q       queryer
	dialect goqu.DialectWrapper
	driver  string
}

var _ storage.Repository = repo{}

func newRepo(q queryer, dialect goqu.DialectWrapper, driver string) repo {
	return repo{q: q, dialect: dialect, driver: driver}
}

type sqlBuilder interface {
	ToSQL() (string, []interface{}, error)
}

func (r repo) get(ctx context.Context, dest interface{}, b sqlBuilder) error {
	query, args, err := b.ToSQL()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return sqlx.GetContext(ctx, r.q, dest, query, args...)
}

func (r repo) selectAll(ctx context.Context, dest interface{}, b sqlBuilder) error {
	query, args, err := b.ToSQL()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return sqlx.SelectContext(ctx, r.q, dest, query, args...)
}

func (r repo) exec(ctx context.Context, b sqlBuilder) (int64, error) {
	query, args, err := b.ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build statement: %w", err)
	}
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// nextSeq orders catalog and loan rows. Concurrent writers may share a value,
// which only ties the listing order; the journal uses a database sequence.
func (r repo) nextSeq(ctx context.Context, table string) (int64, error) {
	var seq int64
	err := r.get(ctx, &seq, r.dialect.From(table).
		Select(goqu.L("COALESCE(MAX(seq), 0) + 1")).
		Prepared(true))
	if err != nil {
		return 0, fmt.Errorf("next %s sequence: %w", table, err)
	}
	return seq, nil
}

func (r repo) FindBook(ctx context.Context, isbn string) (catalog.Book, error) {
	ctx, span := startSpan(ctx, "sqlstore.find_book", attribute.String("book.isbn", isbn))
	defer span.End()

	var book catalog.Book
	err := r.get(ctx, &book, r.dialect.From(tableBooks).
		Select(bookColumns...).
		Where(goqu.Ex{"isbn": isbn}).
		Prepared(true))
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Book{}, catalog.ErrBookNotFound
	}
	if err != nil {
		return catalog.Book{}, fmt.Errorf("find book: %w", err)
	}
	return book, nil
}

func (r repo) FindReader(ctx context.Context, subscriberNumber string) (catalog.Reader, error) {
	ctx, span := startSpan(ctx, "sqlstore.find_reader", attribute.String("reader.subscriber", subscriberNumber))
	defer span.End()

	var reader catalog.Reader
	err := r.get(ctx, &reader, r.dialect.From(tableReaders).
		Select(readerColumns...).
		Where(goqu.Ex{"subscriber_number": subscriberNumber}).
		Prepared(true))
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Reader{}, catalog.ErrReaderNotFound
	}
	if err != nil {
		return catalog.Reader{}, fmt.Errorf("find reader: %w", err)
	}
	return reader, nil
}

func (r repo) UpsertBook(ctx context.Context, book catalog.Book) error {
	ctx, span := startSpan(ctx, "sqlstore.upsert_book", attribute.String("book.isbn", book.ISBN))
	defer span.End()

	record := goqu.Record{
		"title":     book.Title,
		"author":    book.Author,
		"year":      book.Year,
		"publisher": book.Publisher,
		"status":    string(book.Status),
	}

	n, err := r.exec(ctx, r.dialect.Update(tableBooks).
		Set(record).
		Where(goqu.Ex{"isbn": book.ISBN}).
		Prepared(true))
	if err != nil {
		return wrapWrite("update book", err)
	}
	if n > 0 {
		return nil
	}

	seq, err := r.nextSeq(ctx, tableBooks)
	if err != nil {
		return err
	}
	record["isbn"] = book.ISBN
	record[colSeq] = seq
	if _, err := r.exec(ctx, r.dialect.Insert(tableBooks).Rows(record).Prepared(true)); err != nil {
		return wrapWrite("insert book", err)
	}
	return nil
}

func (r repo) DeleteBook(ctx context.Context, isbn string) error {
	ctx, span := startSpan(ctx, "sqlstore.delete_book", attribute.String("book.isbn", isbn))
	defer span.End()

	n, err := r.exec(ctx, r.dialect.Delete(tableBooks).Where(goqu.Ex{"isbn": isbn}).Prepared(true))
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if n == 0 {
		return catalog.ErrBookNotFound
	}
	return nil
}

func (r repo) UpsertReader(ctx context.Context, reader catalog.Reader) error {
	ctx, span := startSpan(ctx, "sqlstore.upsert_reader", attribute.String("reader.subscriber", reader.SubscriberNumber))
	defer span.End()

	record := goqu.Record{
		"first_name":    reader.FirstName,
		"last_name":     reader.LastName,
		"email":         reader.Email,
		"max_loan_days": reader.MaxLoanDays,
	}

	n, err := r.exec(ctx, r.dialect.Update(tableReaders).
		Set(record).
		Where(goqu.Ex{"subscriber_number": reader.SubscriberNumber}).
		Prepared(true))
	if err != nil {
		return wrapWrite("update reader", err)
	}
	if n > 0 {
		return nil
	}

	seq, err := r.nextSeq(ctx, tableReaders)
	if err != nil {
		return err
	}
	record["subscriber_number"] = reader.SubscriberNumber
	record[colSeq] = seq
	if _, err := r.exec(ctx, r.dialect.Insert(tableReaders).Rows(record).Prepared(true)); err != nil {
		return wrapWrite("insert reader", err)
	}
	return nil
}

func (r repo) DeleteReader(ctx context.Context, subscriberNumber string) error {
	ctx, span := startSpan(ctx, "sqlstore.delete_reader", attribute.String("reader.subscriber", subscriberNumber))
	defer span.End()

	n, err := r.exec(ctx, r.dialect.Delete(tableReaders).
		Where(goqu.Ex{"subscriber_number": subscriberNumber}).
		Prepared(true))
	if err != nil {
		return fmt.Errorf("delete reader: %w", err)
	}
	if n == 0 {
		return catalog.ErrReaderNotFound
	}
	return nil
}

func (r repo) AllBooks(ctx context.Context) ([]catalog.Book, error) {
	ctx, span := startSpan(ctx, "sqlstore.all_books")
	defer span.End()

	books := []catalog.Book{}
	err := r.selectAll(ctx, &books, r.dialect.From(tableBooks).
		Select(bookColumns...).
		Order(goqu.I(colSeq).Asc()).
		Prepared(true))
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

func (r repo) AllReaders(ctx context.Context) ([]catalog.Reader, error) {
	ctx, span := startSpan(ctx, "sqlstore.all_readers")
	defer span.End()

	readers := []catalog.Reader{}
	err := r.selectAll(ctx, &readers, r.dialect.From(tableReaders).
		Select(readerColumns...).
		Order(goqu.I(colSeq).Asc()).
		Prepared(true))
	if err != nil {
		return nil, fmt.Errorf("list readers: %w", err)
	}
	return readers, nil
}

func (r repo) InsertLoan(ctx context.Context, loan ledger.Loan) error {
	ctx, span := startSpan(ctx, "sqlstore.insert_loan",
		attribute.String("loan.id", loan.ID),
		attribute.String("book.isbn", loan.BookISBN),
	)
	defer span.End()

	seq, err := r.nextSeq(ctx, tableLoans)
	if err != nil {
		return err
	}

	record := goqu.Record{
		"id":                       loan.ID,
		colSeq:                     seq,
		"book_isbn":                loan.BookISBN,
		"reader_subscriber_number": loan.SubscriberNumber,
		"borrow_date":              ledger.Day(loan.BorrowDate),
		"due_date":                 ledger.Day(loan.DueDate),
		"returned":                 loan.Returned,
		"return_date":              nil,
	}
	if loan.ReturnDate != nil {
		record["return_date"] = ledger.Day(*loan.ReturnDate)
	}

	if _, err := r.exec(ctx, r.dialect.Insert(tableLoans).Rows(record).Prepared(true)); err != nil {
		return wrapWrite("insert loan", err)
	}
	return nil
}

func (r repo) FindLoan(ctx context.Context, id string) (ledger.Loan, error) {
	ctx, span := startSpan(ctx, "sqlstore.find_loan", attribute.String("loan.id", id))
	defer span.End()

	var loan ledger.Loan
	err := r.get(ctx, &loan, r.dialect.From(tableLoans).
		Select(loanColumns...).
		Where(goqu.Ex{"id": id}).
		Prepared(true))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Loan{}, ledger.ErrLoanNotFound
	}
	if err != nil {
		return ledger.Loan{}, fmt.Errorf("find loan: %w", err)
	}
	return normalizeLoan(loan), nil
}

func (r repo) MarkReturned(ctx context.Context, id string, returnDate time.Time) error {
	ctx, span := startSpan(ctx, "sqlstore.mark_returned", attribute.String("loan.id", id))
	defer span.End()

	n, err := r.exec(ctx, r.dialect.Update(tableLoans).
		Set(goqu.Record{"returned": true, "return_date": ledger.Day(returnDate)}).
		Where(goqu.Ex{"id": id, "returned": false}).
		Prepared(true))
	if err != nil {
		return wrapWrite("mark loan returned", err)
	}
	if n > 0 {
		return nil
	}

	// nothing updated: either unknown or already closed
	if _, err := r.FindLoan(ctx, id); err != nil {
		return err
	}
	return ledger.ErrLoanAlreadyReturned
}

func (r repo) LoansByReader(ctx context.Context, subscriberNumber string) ([]ledger.Loan, error) {
	ctx, span := startSpan(ctx, "sqlstore.loans_by_reader", attribute.String("reader.subscriber", subscriberNumber))
	defer span.End()

	return r.listLoans(ctx, goqu.Ex{"reader_subscriber_number": subscriberNumber})
}

func (r repo) OpenLoanForBook(ctx context.Context, isbn string) (*ledger.Loan, error) {
	ctx, span := startSpan(ctx, "sqlstore.open_loan_for_book", attribute.String("book.isbn", isbn))
	defer span.End()

	loans, err := r.listLoans(ctx, goqu.Ex{"book_isbn": isbn, "returned": false})
	if err != nil {
		return nil, err
	}
	if len(loans) == 0 {
		return nil, nil
	}
	return &loans[0], nil
}

func (r repo) AllLoans(ctx context.Context) ([]ledger.Loan, error) {
	ctx, span := startSpan(ctx, "sqlstore.all_loans")
	defer span.End()

	return r.listLoans(ctx, nil)
}

func (r repo) listLoans(ctx context.Context, where goqu.Ex) ([]ledger.Loan, error) {
	ds := r.dialect.From(tableLoans).Select(loanColumns...)
	if where != nil {
		ds = ds.Where(where)
	}

	loans := []ledger.Loan{}
	if err := r.selectAll(ctx, &loans, ds.Order(goqu.I(colSeq).Asc()).Prepared(true)); err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	for i := range loans {
		loans[i] = normalizeLoan(loans[i])
	}
	return loans, nil
}

// normalizeLoan drops whatever time of day and zone the driver attached to DATE columns.
func normalizeLoan(l ledger.Loan) ledger.Loan {
	l.BorrowDate = ledger.Day(l.BorrowDate)
	l.DueDate = ledger.Day(l.DueDate)
	if l.ReturnDate != nil {
		d := ledger.Day(*l.ReturnDate)
		l.ReturnDate = &d
	}
	return l
}

type eventRow struct {
	Seq        int64     `db:"seq"`
	Type       string    `db:"event_type"`
	SubjectID  string    `db:"subject_id"`
	Data       string    `db:"data"`
	OccurredAt time.Time `db:"occurred_at"`
}

func (r repo) AppendEvent(ctx context.Context, event journal.Event) (journal.Event, error) {
	ctx, span := startSpan(ctx, "sqlstore.append_event", attribute.String("event.type", string(event.Type)))
	defer span.End()

	record := goqu.Record{
		"event_type":  string(event.Type),
		"subject_id":  event.SubjectID,
		"data":        string(event.Data),
		"occurred_at": event.OccurredAt.UTC(),
	}
	seq, err := r.insertEvent(ctx, record)
	if err != nil {
		return journal.Event{}, wrapWrite("append event", err)
	}

	span.SetAttributes(attribute.Int64("event.seq", seq))
	event.Seq = seq
	return event, nil
}

// insertEvent lets the database assign seq. goqu's sqlite3 dialect has no
// RETURNING, so SQLite reads the rowid back instead.
func (r repo) insertEvent(ctx context.Context, record goqu.Record) (int64, error) {
	ds := r.dialect.Insert(tableEvents).Rows(record).Prepared(true)
	if r.driver != DriverSQLite {
		var seq int64
		err := r.get(ctx, &seq, ds.Returning(goqu.C(colSeq)))
		return seq, err
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build statement: %w", err)
	}
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r repo) Events(ctx context.Context, afterSeq int64, limit int) ([]journal.Event, error) {
	ctx, span := startSpan(ctx, "sqlstore.events",
		attribute.Int64("after.seq", afterSeq),
		attribute.Int("limit", limit),
	)
	defer span.End()

	ds := r.dialect.From(tableEvents).
		Select(eventColumns...).
		Where(goqu.C(colSeq).Gt(afterSeq)).
		Order(goqu.I(colSeq).Asc())
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}

	var rows []eventRow
	if err := r.selectAll(ctx, &rows, ds.Prepared(true)); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	events := make([]journal.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, journal.Event{
			Seq:        row.Seq,
			Type:       journal.EventType(row.Type),
			SubjectID:  row.SubjectID,
			Data:       []byte(row.Data),
			OccurredAt: row.OccurredAt.UTC(),
		})
	}
	return events, nil
}
