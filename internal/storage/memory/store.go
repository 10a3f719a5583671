// internal/storage/memory/store.go
package memory

import (
	"context"
	"libradesk/internal/catalog"
	"libradesk/internal/journal"
	"libradesk/internal/ledger"
	"libradesk/internal/storage"
	"sync"
	"time"
)

// Store keeps the catalog, ledger and journal in process memory.
// Transactions run against a copy that replaces the live state on success.
type Store struct {
	mu     sync.RWMutex
	st     *state
	closed bool
}

var _ storage.Store = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{st: newState()}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, repo storage.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}

	work := s.st.clone()
	if err := fn(ctx, work); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return storage.ErrClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) read(fn func(st *state) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return storage.ErrClosed
	}
	return fn(s.st)
}

func (s *Store) write(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	return fn(s.st)
}

func (s *Store) FindBook(ctx context.Context, isbn string) (book catalog.Book, err error) {
	err = s.read(func(st *state) error {
		book, err = st.FindBook(ctx, isbn)
		return err
	})
	return book, err
}

func (s *Store) FindReader(ctx context.Context, subscriberNumber string) (reader catalog.Reader, err error) {
	err = s.read(func(st *state) error {
		reader, err = st.FindReader(ctx, subscriberNumber)
		return err
	})
	return reader, err
}

func (s *Store) UpsertBook(ctx context.Context, book catalog.Book) error {
	return s.write(func(st *state) error { return st.UpsertBook(ctx, book) })
}

func (s *Store) DeleteBook(ctx context.Context, isbn string) error {
	return s.write(func(st *state) error { return st.DeleteBook(ctx, isbn) })
}

func (s *Store) UpsertReader(ctx context.Context, reader catalog.Reader) error {
	return s.write(func(st *state) error { return st.UpsertReader(ctx, reader) })
}

func (s *Store) DeleteReader(ctx context.Context, subscriberNumber string) error {
	return s.write(func(st *state) error { return st.DeleteReader(ctx, subscriberNumber) })
}

func (s *Store) AllBooks(ctx context.Context) (books []catalog.Book, err error) {
	err = s.read(func(st *state) error {
		books, err = st.AllBooks(ctx)
		return err
	})
	return books, err
}

func (s *Store) AllReaders(ctx context.Context) (readers []catalog.Reader, err error) {
	err = s.read(func(st *state) error {
		readers, err = st.AllReaders(ctx)
		return err
	})
	return readers, err
}

func (s *Store) InsertLoan(ctx context.Context, loan ledger.Loan) error {
	return s.write(func(st *state) error { return st.InsertLoan(ctx, loan) })
}

func (s *Store) FindLoan(ctx context.Context, id string) (loan ledger.Loan, err error) {
	err = s.read(func(st *state) error {
		loan, err = st.FindLoan(ctx, id)
		return err
	})
	return loan, err
}

func (s *Store) MarkReturned(ctx context.Context, id string, returnDate time.Time) error {
	return s.write(func(st *state) error { return st.MarkReturned(ctx, id, returnDate) })
}

func (s *Store) LoansByReader(ctx context.Context, subscriberNumber string) (loans []ledger.Loan, err error) {
	err = s.read(func(st *state) error {
		loans, err = st.LoansByReader(ctx, subscriberNumber)
		return err
	})
	return loans, err
}

func (s *Store) OpenLoanForBook(ctx context.Context, isbn string) (loan *ledger.Loan, err error) {
	err = s.read(func(st *state) error {
		loan, err = st.OpenLoanForBook(ctx, isbn)
		return err
	})
	return loan, err
}

func (s *Store) AllLoans(ctx context.Context) (loans []ledger.Loan, err error) {
	err = s.read(func(st *state) error {
		loans, err = st.AllLoans(ctx)
		return err
	})
	return loans, err
}

func (s *Store) AppendEvent(ctx context.Context, event journal.Event) (appended journal.Event, err error) {
	err = s.write(func(st *state) error {
		appended, err = st.AppendEvent(ctx, event)
		return err
	})
	return appended, err
}

func (s *Store) Events(ctx context.Context, afterSeq int64, limit int) (events []journal.Event, err error) {
	err = s.read(func(st *state) error {
		events, err = st.Events(ctx, afterSeq, limit)
		return err
	})
	return events, err
}
