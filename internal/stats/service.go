// internal/stats/service.go
package stats

import (
	"context"
	"libradesk/internal/catalog"
	"libradesk/internal/ledger"
	"time"
)

// Source is the read side of the catalog and the ledger.
type Source interface {
	AllBooks(ctx context.Context) ([]catalog.Book, error)
	AllReaders(ctx context.Context) ([]catalog.Reader, error)
	AllLoans(ctx context.Context) ([]ledger.Loan, error)
	LoansByReader(ctx context.Context, subscriberNumber string) ([]ledger.Loan, error)
}

// OverdueLoan is an open loan past its due date.
type OverdueLoan struct {
	ledger.Loan
	DaysOverdue int `json:"days_overdue"`
}

// BookCount is one row of the most-borrowed ranking.
type BookCount struct {
	ISBN  string `json:"isbn"`
	Title string `json:"title,omitempty"`
	Count int    `json:"count"`
}

// ReaderCount is the number of loans a reader ever made.
type ReaderCount struct {
	SubscriberNumber string `json:"subscriber_number"`
	Name             string `json:"name,omitempty"`
	Count            int    `json:"count"`
}

// Summary holds the dashboard counters.
type Summary struct {
	Books        int `json:"books"`
	Readers      int `json:"readers"`
	Loans        int `json:"loans"`
	OpenLoans    int `json:"open_loans"`
	OverdueLoans int `json:"overdue_loans"`
}

// Service answers read-only questions about loans. Nothing it does changes state.
type Service interface {
	AllOverdueLoans(ctx context.Context, date time.Time) ([]OverdueLoan, error)
	OverdueLoansForReader(ctx context.Context, subscriberNumber string, date time.Time) ([]OverdueLoan, error)
	ActiveLoansForReader(ctx context.Context, subscriberNumber string) ([]ledger.Loan, error)
	TopBorrowedBooks(ctx context.Context, n int) ([]BookCount, error)
	LoansCountByReader(ctx context.Context) (map[string]int, error)
	ReaderLoanCounts(ctx context.Context) ([]ReaderCount, error)
	Summary(ctx context.Context, date time.Time) (Summary, error)
}
