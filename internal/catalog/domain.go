// internal/catalog/domain.go
package catalog

import (
	"fmt"
	"strings"
)

// BookStatus is the availability of a book. It only changes through loans.
type BookStatus string

const (
	StatusAvailable BookStatus = "AVAILABLE"
	StatusBorrowed  BookStatus = "BORROWED"
)

// ParseStatus accepts the status in any letter case.
func ParseStatus(s string) (BookStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(StatusAvailable):
		return StatusAvailable, nil
	case string(StatusBorrowed):
		return StatusBorrowed, nil
	default:
		return "", fmt.Errorf("%w: unknown book status %q", ErrInvalid, s)
	}
}

// Book represents a title held by the library. The ISBN never changes once created.
type Book struct {
	ISBN      string     `json:"isbn" db:"isbn" validate:"required,max=32"`
	Title     string     `json:"title" db:"title" validate:"required"`
	Author    string     `json:"author" db:"author" validate:"required"`
	Year      int        `json:"year" db:"year" validate:"gte=0"`
	Publisher string     `json:"publisher" db:"publisher"`
	Status    BookStatus `json:"status" db:"status" validate:"omitempty,oneof=AVAILABLE BORROWED"`
}

// Available reports whether the book can be lent out.
func (b Book) Available() bool {
	return b.Status == StatusAvailable
}

// Reader represents a registered library subscriber.
type Reader struct {
	SubscriberNumber string `json:"subscriber_number" db:"subscriber_number" validate:"required,max=32"`
	FirstName        string `json:"first_name" db:"first_name" validate:"required"`
	LastName         string `json:"last_name" db:"last_name" validate:"required"`
	Email            string `json:"email" db:"email" validate:"omitempty,email"`
	MaxLoanDays      int    `json:"max_loan_days" db:"max_loan_days" validate:"gt=0"`
}

// FullName is the display name used in statistics.
func (r Reader) FullName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

func (r Reader) String() string {
	return fmt.Sprintf("%s (%s)", r.FullName(), r.SubscriberNumber)
}
