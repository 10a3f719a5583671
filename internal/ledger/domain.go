// internal/ledger/domain.go
package ledger

import (
	"time"
)

// Loan is one borrow transaction. It references the book and the reader by
// identifier only, so catalog records can change without touching loan history.
type Loan struct {
	ID               string     `json:"id" db:"id"`
	BookISBN         string     `json:"book_isbn" db:"book_isbn"`
	SubscriberNumber string     `json:"subscriber_number" db:"reader_subscriber_number"`
	BorrowDate       time.Time  `json:"borrow_date" db:"borrow_date"`
	DueDate          time.Time  `json:"due_date" db:"due_date"`
	Returned         bool       `json:"returned" db:"returned"`
	ReturnDate       *time.Time `json:"return_date,omitempty" db:"return_date"`
}

// IsOpen reports whether the book is still out.
func (l Loan) IsOpen() bool {
	return !l.Returned
}

// IsOverdue is true for an open loan whose due date is strictly before the given day.
// A loan due today is not overdue.
func (l Loan) IsOverdue(on time.Time) bool {
	return !l.Returned && Day(l.DueDate).Before(Day(on))
}

// DaysOverdue returns how many whole days past the due date the loan is on the given day.
func (l Loan) DaysOverdue(on time.Time) int {
	if !l.IsOverdue(on) {
		return 0
	}
	return DaysBetween(l.DueDate, on)
}

// Day truncates t to its calendar date at UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DueDate adds the loan allowance to the borrow day.
func DueDate(borrowed time.Time, loanDays int) time.Time {
	return Day(borrowed).AddDate(0, 0, loanDays)
}

// DaysBetween counts calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// SameMonth reports whether both days fall in the same calendar month.
func SameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// ParseDay reads a YYYY-MM-DD date.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return Day(t), nil
}

// DateLayout is the wire format for loan dates.
const DateLayout = "2006-01-02"
