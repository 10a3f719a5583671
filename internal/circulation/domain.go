// internal/circulation/domain.go
package circulation

import (
	"libradesk/internal/catalog"
	"libradesk/internal/ledger"
	"time"
)

// Policy holds the lending rules that are not part of a reader record.
type Policy struct {
	// MonthlyLoanLimit caps loans per reader per calendar month. Zero disables it.
	MonthlyLoanLimit int
	// EnforceMonthlyLimit turns the cap from a warning into a rejection.
	EnforceMonthlyLimit bool
	// DefaultLoanDays is used for readers whose MaxLoanDays is not positive.
	DefaultLoanDays int
}

// DefaultPolicy warns after two loans a month and lends for 14 days by default.
var DefaultPolicy = Policy{
	MonthlyLoanLimit:    2,
	EnforceMonthlyLimit: false,
	DefaultLoanDays:     14,
}

// BorrowRequest asks to lend a book to a reader on a given day.
// A zero Date means today.
type BorrowRequest struct {
	ISBN                 string    `json:"isbn"`
	SubscriberNumber     string    `json:"subscriber_number"`
	Date                 time.Time `json:"date"`
	OverrideMonthlyLimit bool      `json:"override_monthly_limit"`
}

// BorrowResult is the opened loan plus the advisory checks made before opening it.
// Monthly counts are taken before the new loan.
type BorrowResult struct {
	Loan                ledger.Loan   `json:"loan"`
	MonthlyLoanCount    int           `json:"monthly_loan_count"`
	MonthlyLoanLimit    int           `json:"monthly_loan_limit"`
	MonthlyLimitReached bool          `json:"monthly_limit_reached"`
	LimitOverridden     bool          `json:"limit_overridden"`
	OverdueLoans        []ledger.Loan `json:"overdue_loans"`
}

// Eligibility is the outcome of the borrow checks without side effects.
type Eligibility struct {
	Book                catalog.Book   `json:"book"`
	Reader              catalog.Reader `json:"reader"`
	Available           bool           `json:"available"`
	DueDate             time.Time      `json:"due_date"`
	MonthlyLoanCount    int            `json:"monthly_loan_count"`
	MonthlyLoanLimit    int            `json:"monthly_loan_limit"`
	MonthlyLimitReached bool           `json:"monthly_limit_reached"`
	OverdueLoans        []ledger.Loan  `json:"overdue_loans"`
}

// ImportReport counts what a bulk import did with each record.
type ImportReport struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Invalid  int `json:"invalid"`
	// Normalized counts books that arrived BORROWED and were stored AVAILABLE.
	Normalized int `json:"normalized"`
}

// LoanOpenedEvent is journaled when a book is lent out.
type LoanOpenedEvent struct {
	LoanID           string    `json:"loan_id"`
	BookISBN         string    `json:"book_isbn"`
	SubscriberNumber string    `json:"subscriber_number"`
	BorrowDate       time.Time `json:"borrow_date"`
	DueDate          time.Time `json:"due_date"`
}

// LoanReturnedEvent is journaled when a book comes back.
type LoanReturnedEvent struct {
	LoanID           string    `json:"loan_id"`
	BookISBN         string    `json:"book_isbn"`
	SubscriberNumber string    `json:"subscriber_number"`
	ReturnDate       time.Time `json:"return_date"`
	DaysLate         int       `json:"days_late"`
}

// RemovedEvent is journaled when a book or reader is deleted.
type RemovedEvent struct {
	ID string `json:"id"`
}
