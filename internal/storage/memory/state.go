// internal/storage/memory/state.go
package memory

import (
	"context"
	"fmt"
	"libradesk/internal/catalog"
	"libradesk/internal/journal"
	"libradesk/internal/ledger"
	"libradesk/internal/storage"
	"time"
)

// state is the unlocked data set. It implements storage.Repository and is
// only touched while Store.mu is held.
type state struct {
	books       map[string]catalog.Book
	bookOrder   []string
	readers     map[string]catalog.Reader
	readerOrder []string
	loans       map[string]ledger.Loan
	loanOrder   []string
	events      []journal.Event
}

var _ storage.Repository = (*state)(nil)

func newState() *state {
	return &state{
		books:   make(map[string]catalog.Book),
		readers: make(map[string]catalog.Reader),
		loans:   make(map[string]ledger.Loan),
	}
}

func (s *state) clone() *state {
	c := &state{
		books:       make(map[string]catalog.Book, len(s.books)),
		bookOrder:   append([]string(nil), s.bookOrder...),
		readers:     make(map[string]catalog.Reader, len(s.readers)),
		readerOrder: append([]string(nil), s.readerOrder...),
		loans:       make(map[string]ledger.Loan, len(s.loans)),
		loanOrder:   append([]string(nil), s.loanOrder...),
		events:      append([]journal.Event(nil), s.events...),
	}
	for k, v := range s.books {
		c.books[k] = v
	}
	for k, v := range s.readers {
		c.readers[k] = v
	}
	for k, v := range s.loans {
		c.loans[k] = v
	}
	return c
}

func (s *state) FindBook(_ context.Context, isbn string) (catalog.Book, error) {
	b, ok := s.books[isbn]
	if !ok {
		return catalog.Book{}, catalog.ErrBookNotFound
	}
	return b, nil
}

func (s *state) FindReader(_ context.Context, subscriberNumber string) (catalog.Reader, error) {
	r, ok := s.readers[subscriberNumber]
	if !ok {
		return catalog.Reader{}, catalog.ErrReaderNotFound
	}
	return r, nil
}

func (s *state) UpsertBook(_ context.Context, book catalog.Book) error {
	if _, ok := s.books[book.ISBN]; !ok {
		s.bookOrder = append(s.bookOrder, book.ISBN)
	}
	s.books[book.ISBN] = book
	return nil
}

func (s *state) DeleteBook(_ context.Context, isbn string) error {
	if _, ok := s.books[isbn]; !ok {
		return catalog.ErrBookNotFound
	}
	delete(s.books, isbn)
	s.bookOrder = without(s.bookOrder, isbn)
	return nil
}

func (s *state) UpsertReader(_ context.Context, reader catalog.Reader) error {
	if _, ok := s.readers[reader.SubscriberNumber]; !ok {
		s.readerOrder = append(s.readerOrder, reader.SubscriberNumber)
	}
	s.readers[reader.SubscriberNumber] = reader
	return nil
}

func (s *state) DeleteReader(_ context.Context, subscriberNumber string) error {
	if _, ok := s.readers[subscriberNumber]; !ok {
		return catalog.ErrReaderNotFound
	}
	delete(s.readers, subscriberNumber)
	s.readerOrder = without(s.readerOrder, subscriberNumber)
	return nil
}

func (s *state) AllBooks(_ context.Context) ([]catalog.Book, error) {
	books := make([]catalog.Book, 0, len(s.bookOrder))
	for _, isbn := range s.bookOrder {
		books = append(books, s.books[isbn])
	}
	return books, nil
}

func (s *state) AllReaders(_ context.Context) ([]catalog.Reader, error) {
	readers := make([]catalog.Reader, 0, len(s.readerOrder))
	for _, sub := range s.readerOrder {
		readers = append(readers, s.readers[sub])
	}
	return readers, nil
}

func (s *state) InsertLoan(_ context.Context, loan ledger.Loan) error {
	if _, ok := s.loans[loan.ID]; ok {
		return fmt.Errorf("%w: loan %s", storage.ErrDuplicate, loan.ID)
	}
	if !loan.Returned {
		for _, existing := range s.loans {
			if existing.BookISBN == loan.BookISBN && !existing.Returned {
				return fmt.Errorf("%w: open loan for book %s", storage.ErrDuplicate, loan.BookISBN)
			}
		}
	}
	s.loans[loan.ID] = loan
	s.loanOrder = append(s.loanOrder, loan.ID)
	return nil
}

func (s *state) FindLoan(_ context.Context, id string) (ledger.Loan, error) {
	l, ok := s.loans[id]
	if !ok {
		return ledger.Loan{}, ledger.ErrLoanNotFound
	}
	return l, nil
}

func (s *state) MarkReturned(_ context.Context, id string, returnDate time.Time) error {
	l, ok := s.loans[id]
	if !ok {
		return ledger.ErrLoanNotFound
	}
	if l.Returned {
		return ledger.ErrLoanAlreadyReturned
	}
	day := ledger.Day(returnDate)
	l.Returned = true
	l.ReturnDate = &day
	s.loans[id] = l
	return nil
}

func (s *state) LoansByReader(_ context.Context, subscriberNumber string) ([]ledger.Loan, error) {
	var loans []ledger.Loan
	for _, id := range s.loanOrder {
		if l := s.loans[id]; l.SubscriberNumber == subscriberNumber {
			loans = append(loans, l)
		}
	}
	return loans, nil
}

func (s *state) OpenLoanForBook(_ context.Context, isbn string) (*ledger.Loan, error) {
	for _, id := range s.loanOrder {
		if l := s.loans[id]; l.BookISBN == isbn && !l.Returned {
			return &l, nil
		}
	}
	return nil, nil
}

func (s *state) AllLoans(_ context.Context) ([]ledger.Loan, error) {
	loans := make([]ledger.Loan, 0, len(s.loanOrder))
	for _, id := range s.loanOrder {
		loans = append(loans, s.loans[id])
	}
	return loans, nil
}

func (s *state) AppendEvent(_ context.Context, event journal.Event) (journal.Event, error) {
	event.Seq = int64(len(s.events)) + 1
	s.events = append(s.events, event)
	return event, nil
}

func (s *state) Events(_ context.Context, afterSeq int64, limit int) ([]journal.Event, error) {
	var out []journal.Event
	for _, ev := range s.events {
		if ev.Seq <= afterSeq {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func without(ids []string, id string) []string {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
