// internal/storage/storagetest/contract.go
package storagetest

import (
	"context"
	"errors"
	"libradesk/internal/catalog"
	"libradesk/internal/journal"
	"libradesk/internal/ledger"
	"libradesk/internal/storage"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty, migrated store.
type Factory func(t *testing.T) storage.Store

var day = func(s string) time.Time {
	d, err := ledger.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Run checks the behaviour every storage.Store implementation must share.
func Run(t *testing.T, newStore Factory) {
	t.Run("books keep insertion order and upsert in place", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.UpsertBook(ctx, Book("B2")))
		require.NoError(t, s.UpsertBook(ctx, Book("B1")))
		updated := Book("B2")
		updated.Title = "Second edition"
		require.NoError(t, s.UpsertBook(ctx, updated))

		books, err := s.AllBooks(ctx)
		require.NoError(t, err)
		require.Len(t, books, 2)
		assert.Equal(t, "B2", books[0].ISBN)
		assert.Equal(t, "Second edition", books[0].Title)
		assert.Equal(t, "B1", books[1].ISBN)

		got, err := s.FindBook(ctx, "B1")
		require.NoError(t, err)
		assert.Equal(t, Book("B1"), got)
	})

	t.Run("missing records report not found", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.FindBook(ctx, "nope")
		assert.ErrorIs(t, err, catalog.ErrBookNotFound)
		_, err = s.FindReader(ctx, "nope")
		assert.ErrorIs(t, err, catalog.ErrReaderNotFound)
		_, err = s.FindLoan(ctx, "nope")
		assert.ErrorIs(t, err, ledger.ErrLoanNotFound)
		assert.ErrorIs(t, s.DeleteBook(ctx, "nope"), catalog.ErrBookNotFound)
		assert.ErrorIs(t, s.DeleteReader(ctx, "nope"), catalog.ErrReaderNotFound)
		assert.ErrorIs(t, s.MarkReturned(ctx, "nope", day("2024-01-01")), ledger.ErrLoanNotFound)
	})

	t.Run("readers round trip and delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.UpsertReader(ctx, Reader("R1")))
		require.NoError(t, s.UpsertReader(ctx, Reader("R2")))
		require.NoError(t, s.DeleteReader(ctx, "R1"))

		readers, err := s.AllReaders(ctx)
		require.NoError(t, err)
		require.Len(t, readers, 1)
		assert.Equal(t, Reader("R2"), readers[0])
	})

	t.Run("loans open and close once", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		loan := Loan("L1", "B1", "R1", day("2024-01-01"), 14)
		require.NoError(t, s.InsertLoan(ctx, loan))

		open, err := s.OpenLoanForBook(ctx, "B1")
		require.NoError(t, err)
		require.NotNil(t, open)
		assert.Equal(t, "L1", open.ID)
		assert.True(t, open.DueDate.Equal(day("2024-01-15")))

		require.NoError(t, s.MarkReturned(ctx, "L1", day("2024-01-10")))
		assert.ErrorIs(t, s.MarkReturned(ctx, "L1", day("2024-01-11")), ledger.ErrLoanAlreadyReturned)

		got, err := s.FindLoan(ctx, "L1")
		require.NoError(t, err)
		assert.True(t, got.Returned)
		require.NotNil(t, got.ReturnDate)
		assert.True(t, got.ReturnDate.Equal(day("2024-01-10")))

		open, err = s.OpenLoanForBook(ctx, "B1")
		require.NoError(t, err)
		assert.Nil(t, open)
	})

	t.Run("second open loan for a book is a duplicate", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.InsertLoan(ctx, Loan("L1", "B1", "R1", day("2024-01-01"), 14)))
		err := s.InsertLoan(ctx, Loan("L2", "B1", "R2", day("2024-01-02"), 14))
		assert.ErrorIs(t, err, storage.ErrDuplicate)

		require.NoError(t, s.MarkReturned(ctx, "L1", day("2024-01-03")))
		assert.NoError(t, s.InsertLoan(ctx, Loan("L2", "B1", "R2", day("2024-01-04"), 14)))
	})

	t.Run("loans by reader in borrow order", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.InsertLoan(ctx, Loan("L1", "B1", "R1", day("2024-01-01"), 14)))
		require.NoError(t, s.InsertLoan(ctx, Loan("L2", "B2", "R2", day("2024-01-02"), 14)))
		require.NoError(t, s.InsertLoan(ctx, Loan("L3", "B3", "R1", day("2024-01-03"), 14)))

		loans, err := s.LoansByReader(ctx, "R1")
		require.NoError(t, err)
		require.Len(t, loans, 2)
		assert.Equal(t, "L1", loans[0].ID)
		assert.Equal(t, "L3", loans[1].ID)

		all, err := s.AllLoans(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 3)

		none, err := s.LoansByReader(ctx, "R9")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("failed transaction keeps nothing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		boom := errors.New("boom")

		err := s.InTx(ctx, func(ctx context.Context, repo storage.Repository) error {
			if err := repo.UpsertBook(ctx, Book("B1")); err != nil {
				return err
			}
			if err := repo.InsertLoan(ctx, Loan("L1", "B1", "R1", day("2024-01-01"), 14)); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		_, err = s.FindBook(ctx, "B1")
		assert.ErrorIs(t, err, catalog.ErrBookNotFound)
		loans, err := s.AllLoans(ctx)
		require.NoError(t, err)
		assert.Empty(t, loans)
	})

	t.Run("committed transaction is visible", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		err := s.InTx(ctx, func(ctx context.Context, repo storage.Repository) error {
			if err := repo.UpsertBook(ctx, Book("B1")); err != nil {
				return err
			}
			got, err := repo.FindBook(ctx, "B1")
			if err != nil {
				return err
			}
			assert.Equal(t, "B1", got.ISBN)
			return nil
		})
		require.NoError(t, err)

		_, err = s.FindBook(ctx, "B1")
		assert.NoError(t, err)
	})

	t.Run("journal assigns sequence numbers", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

		for i, typ := range []journal.EventType{journal.BookAdded, journal.ReaderRegistered, journal.LoanOpened} {
			ev, err := journal.NewEvent(typ, "subject", map[string]int{"n": i}, at)
			require.NoError(t, err)
			appended, err := s.AppendEvent(ctx, ev)
			require.NoError(t, err)
			assert.Equal(t, int64(i+1), appended.Seq)
		}

		events, err := s.Events(ctx, 1, 0)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, journal.ReaderRegistered, events[0].Type)
		assert.Equal(t, int64(3), events[1].Seq)
		assert.JSONEq(t, `{"n":2}`, string(events[1].Data))
		assert.True(t, events[1].OccurredAt.Equal(at))

		limited, err := s.Events(ctx, 0, 1)
		require.NoError(t, err)
		require.Len(t, limited, 1)
		assert.Equal(t, journal.BookAdded, limited[0].Type)
	})

	t.Run("closed store refuses work", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Close())
		assert.Error(t, s.Ping(context.Background()))
	})
}

// Book builds a valid available book.
func Book(isbn string) catalog.Book {
	return catalog.Book{
		ISBN:      isbn,
		Title:     "Title " + isbn,
		Author:    "Author",
		Year:      2001,
		Publisher: "Publisher",
		Status:    catalog.StatusAvailable,
	}
}

// Reader builds a valid reader with a 14 day allowance.
func Reader(sub string) catalog.Reader {
	return catalog.Reader{
		SubscriberNumber: sub,
		FirstName:        "First",
		LastName:         "Last " + sub,
		Email:            sub + "@example.org",
		MaxLoanDays:      14,
	}
}

// Loan builds an open loan.
func Loan(id, isbn, sub string, borrowed time.Time, days int) ledger.Loan {
	return ledger.Loan{
		ID:               id,
		BookISBN:         isbn,
		SubscriberNumber: sub,
		BorrowDate:       ledger.Day(borrowed),
		DueDate:          ledger.DueDate(borrowed, days),
	}
}
