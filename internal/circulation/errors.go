// internal/circulation/errors.go
package circulation

import (
	"errors"
	"fmt"
	"libradesk/internal/catalog"
	"libradesk/internal/ledger"
)

// Kind classifies engine errors for callers that map them to responses.
type Kind int

const (
	KindNone Kind = iota
	KindNotFound
	KindAlreadyBorrowed
	KindAlreadyReturned
	KindMonthlyLimitExceeded
	KindConflict
	KindInvalid
	KindStorageFailure
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNotFound:
		return "not_found"
	case KindAlreadyBorrowed:
		return "already_borrowed"
	case KindAlreadyReturned:
		return "already_returned"
	case KindMonthlyLimitExceeded:
		return "monthly_limit_exceeded"
	case KindConflict:
		return "conflict"
	case KindInvalid:
		return "invalid"
	default:
		return "storage_failure"
	}
}

// KindOf classifies err. Errors the engine does not recognise count as storage failures.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	if k, ok := domainKind(err); ok {
		return k
	}
	return KindStorageFailure
}

func domainKind(err error) (Kind, bool) {
	switch {
	case errors.Is(err, ErrStorageFailure):
		return KindStorageFailure, true
	case errors.Is(err, catalog.ErrBookNotFound),
		errors.Is(err, catalog.ErrReaderNotFound),
		errors.Is(err, ledger.ErrLoanNotFound):
		return KindNotFound, true
	case errors.Is(err, ErrAlreadyBorrowed):
		return KindAlreadyBorrowed, true
	case errors.Is(err, ErrAlreadyReturned):
		return KindAlreadyReturned, true
	case errors.Is(err, ErrMonthlyLimitExceeded):
		return KindMonthlyLimitExceeded, true
	case errors.Is(err, ErrBookOnLoan),
		errors.Is(err, ErrReaderHasOpenLoans),
		errors.Is(err, ErrDuplicate):
		return KindConflict, true
	case errors.Is(err, catalog.ErrInvalid):
		return KindInvalid, true
	}
	return KindNone, false
}

// storageFailure marks err as a persistence problem unless it already carries a kind.
func storageFailure(op string, err error) error {
	if _, ok := domainKind(err); ok {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStorageFailure, op, err)
}
