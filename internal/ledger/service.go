// internal/ledger/service.go
package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrLoanNotFound is returned when no loan has the requested id
	ErrLoanNotFound = errors.New("loan not found")

	// ErrLoanAlreadyReturned is returned when a loan is closed a second time
	ErrLoanAlreadyReturned = errors.New("loan already returned")
)

// Ledger holds the loan records. Loans are never deleted; the only mutation is
// the one-way transition from open to returned.
type Ledger interface {
	InsertLoan(ctx context.Context, loan Loan) error
	FindLoan(ctx context.Context, id string) (Loan, error)
	MarkReturned(ctx context.Context, id string, returnDate time.Time) error
	LoansByReader(ctx context.Context, subscriberNumber string) ([]Loan, error)
	// OpenLoanForBook returns nil when the book is not out.
	OpenLoanForBook(ctx context.Context, isbn string) (*Loan, error)
	AllLoans(ctx context.Context) ([]Loan, error)
}
