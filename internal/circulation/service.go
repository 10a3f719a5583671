// internal/circulation/service.go
package circulation

import (
	"context"
	"errors"
	"libradesk/internal/catalog"
	"libradesk/internal/journal"
	"libradesk/internal/ledger"
	"time"
)

var (
	// ErrAlreadyBorrowed is returned when the book is out on another loan
	ErrAlreadyBorrowed = errors.New("book is already borrowed")

	// ErrAlreadyReturned is returned when a closed loan is returned again
	ErrAlreadyReturned = ledger.ErrLoanAlreadyReturned

	// ErrMonthlyLimitExceeded is returned when an enforced monthly cap is hit
	ErrMonthlyLimitExceeded = errors.New("monthly loan limit exceeded")

	// ErrBookOnLoan is returned when deleting a borrowed book
	ErrBookOnLoan = errors.New("book is on loan")

	// ErrReaderHasOpenLoans is returned when deleting a reader who still has books
	ErrReaderHasOpenLoans = errors.New("reader has open loans")

	// ErrDuplicate is returned when adding a record whose identifier exists
	ErrDuplicate = errors.New("record already exists")

	// ErrStorageFailure wraps any persistence error; nothing was committed
	ErrStorageFailure = errors.New("storage failure")
)

// Listener receives every committed journal event, in commit order.
type Listener func(ctx context.Context, event journal.Event) error

// Service is the loan lifecycle engine. Every mutation of books, readers and
// loans goes through it so book status always matches the open loans.
type Service interface {
	Borrow(ctx context.Context, req BorrowRequest) (BorrowResult, error)
	Eligibility(ctx context.Context, isbn, subscriberNumber string, date time.Time) (Eligibility, error)
	Return(ctx context.Context, loanID string, date time.Time) (ledger.Loan, error)

	AddBook(ctx context.Context, book catalog.Book) (catalog.Book, error)
	UpdateBook(ctx context.Context, book catalog.Book) (catalog.Book, error)
	RemoveBook(ctx context.Context, isbn string) error
	RegisterReader(ctx context.Context, reader catalog.Reader) (catalog.Reader, error)
	UpdateReader(ctx context.Context, reader catalog.Reader) (catalog.Reader, error)
	RemoveReader(ctx context.Context, subscriberNumber string) error
	ImportBooks(ctx context.Context, books []catalog.Book) (ImportReport, error)
	ImportReaders(ctx context.Context, readers []catalog.Reader) (ImportReport, error)

	Journal(ctx context.Context, afterSeq int64, limit int) ([]journal.Event, error)
	Subscribe(l Listener)
}
