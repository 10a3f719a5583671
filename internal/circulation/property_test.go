package circulation

import (
	"context"
	"libradesk/internal/catalog"
	"libradesk/internal/storage/memory"
	"libradesk/internal/storage/storagetest"
	"testing"
	"time"

	"go.uber.org/zap"
	"pgregory.net/rapid"
)

func TestBookStatusMatchesOpenLoans(t *testing.T) {
	isbns := []string{"B1", "B2", "B3"}
	subs := []string{"R1", "R2"}

	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		store := memory.NewStore()
		svc := NewService(store, DefaultPolicy, zap.NewNop())

		for _, isbn := range isbns {
			if _, err := svc.AddBook(ctx, storagetest.Book(isbn)); err != nil {
				t.Fatalf("seed book: %v", err)
			}
		}
		for _, sub := range subs {
			if _, err := svc.RegisterReader(ctx, storagetest.Reader(sub)); err != nil {
				t.Fatalf("seed reader: %v", err)
			}
		}

		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		var loanIDs []string
		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			date := start.AddDate(0, 0, i)
			if len(loanIDs) == 0 || rapid.Bool().Draw(t, "borrow") {
				req := BorrowRequest{
					ISBN:             rapid.SampledFrom(isbns).Draw(t, "isbn"),
					SubscriberNumber: rapid.SampledFrom(subs).Draw(t, "subscriber"),
					Date:             date,
				}
				res, err := svc.Borrow(ctx, req)
				switch KindOf(err) {
				case KindNone:
					loanIDs = append(loanIDs, res.Loan.ID)
				case KindAlreadyBorrowed:
				default:
					t.Fatalf("borrow %+v: %v", req, err)
				}
			} else {
				id := rapid.SampledFrom(loanIDs).Draw(t, "loan")
				if _, err := svc.Return(ctx, id, date); err != nil && KindOf(err) != KindAlreadyReturned {
					t.Fatalf("return %s: %v", id, err)
				}
			}

			for _, isbn := range isbns {
				book, err := store.FindBook(ctx, isbn)
				if err != nil {
					t.Fatalf("find book: %v", err)
				}
				open, err := store.OpenLoanForBook(ctx, isbn)
				if err != nil {
					t.Fatalf("open loan: %v", err)
				}
				if (book.Status == catalog.StatusBorrowed) != (open != nil) {
					t.Fatalf("book %s is %s but open loan = %v", isbn, book.Status, open)
				}
			}
		}
	})
}
