// internal/circulation/implementation.go
package circulation

import (
	"context"
	"errors"
	"fmt"
	"libradesk/internal/catalog"
	"libradesk/internal/journal"
	"libradesk/internal/ledger"
	"libradesk/internal/metrics"
	"libradesk/internal/storage"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// service implements the Service interface.
type service struct {
	store  storage.Store
	policy Policy
	log    *zap.Logger
	tracer trace.Tracer
	now    func() time.Time

	// mu serializes mutations from precondition check to commit
	mu sync.Mutex

	listenersMu sync.RWMutex
	listeners   []Listener
}

// Option configures the engine.
type Option func(*service)

// WithClock replaces time.Now for requests that carry no date.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// WithListener subscribes l before the engine is used.
func WithListener(l Listener) Option {
	return func(s *service) { s.listeners = append(s.listeners, l) }
}

// NewService creates a new circulation engine on top of store.
func NewService(store storage.Store, policy Policy, log *zap.Logger, opts ...Option) Service {
	if policy.DefaultLoanDays <= 0 {
		policy.DefaultLoanDays = DefaultPolicy.DefaultLoanDays
	}
	s := &service{
		store:  store,
		policy: policy,
		log:    log,
		tracer: otel.Tracer("libradesk/circulation"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Borrow lends a book to a reader.
func (s *service) Borrow(ctx context.Context, req BorrowRequest) (BorrowResult, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.borrow",
		trace.WithAttributes(
			attribute.String("book.isbn", req.ISBN),
			attribute.String("reader.subscriber", req.SubscriberNumber),
		),
	)
	defer span.End()
	defer observe("borrow", time.Now())

	day := s.dayOf(req.Date)
	var result BorrowResult

	err := s.mutate(ctx, "borrow", func(ctx context.Context, tx *txn) error {
		elig, err := s.check(ctx, tx.repo, req.ISBN, req.SubscriberNumber, day)
		if err != nil {
			return err
		}
		if !elig.Available {
			return fmt.Errorf("%w: %s", ErrAlreadyBorrowed, req.ISBN)
		}

		overridden := false
		if elig.MonthlyLimitReached && s.policy.EnforceMonthlyLimit {
			if !req.OverrideMonthlyLimit {
				return fmt.Errorf("%w: reader %s has %d loans this month (limit %d)",
					ErrMonthlyLimitExceeded, req.SubscriberNumber, elig.MonthlyLoanCount, elig.MonthlyLoanLimit)
			}
			overridden = true
		}

		loan := ledger.Loan{
			ID:               uuid.NewString(),
			BookISBN:         elig.Book.ISBN,
			SubscriberNumber: elig.Reader.SubscriberNumber,
			BorrowDate:       day,
			DueDate:          elig.DueDate,
		}
		if err := tx.repo.InsertLoan(ctx, loan); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				return fmt.Errorf("%w: %s", ErrAlreadyBorrowed, req.ISBN)
			}
			return storageFailure("insert loan", err)
		}

		book := elig.Book
		book.Status = catalog.StatusBorrowed
		if err := tx.repo.UpsertBook(ctx, book); err != nil {
			return storageFailure("mark book borrowed", err)
		}

		if err := tx.record(ctx, journal.LoanOpened, loan.ID, LoanOpenedEvent{
			LoanID:           loan.ID,
			BookISBN:         loan.BookISBN,
			SubscriberNumber: loan.SubscriberNumber,
			BorrowDate:       loan.BorrowDate,
			DueDate:          loan.DueDate,
		}); err != nil {
			return err
		}

		result = BorrowResult{
			Loan:                loan,
			MonthlyLoanCount:    elig.MonthlyLoanCount,
			MonthlyLoanLimit:    elig.MonthlyLoanLimit,
			MonthlyLimitReached: elig.MonthlyLimitReached,
			LimitOverridden:     overridden,
			OverdueLoans:        elig.OverdueLoans,
		}
		return nil
	})
	countOutcome(metrics.Borrows, err)
	if err != nil {
		span.RecordError(err)
		s.log.Warn("borrow refused",
			zap.String("isbn", req.ISBN),
			zap.String("subscriber", req.SubscriberNumber),
			zap.String("kind", KindOf(err).String()),
			zap.Error(err),
		)
		return BorrowResult{}, err
	}

	span.SetAttributes(attribute.String("loan.id", result.Loan.ID))
	s.log.Info("loan opened",
		zap.String("loan_id", result.Loan.ID),
		zap.String("isbn", result.Loan.BookISBN),
		zap.String("subscriber", result.Loan.SubscriberNumber),
		zap.Time("due_date", result.Loan.DueDate),
		zap.Bool("monthly_limit_reached", result.MonthlyLimitReached),
		zap.Int("overdue_loans", len(result.OverdueLoans)),
	)
	return result, nil
}

// Eligibility runs the borrow checks without changing anything.
func (s *service) Eligibility(ctx context.Context, isbn, subscriberNumber string, date time.Time) (Eligibility, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.eligibility",
		trace.WithAttributes(
			attribute.String("book.isbn", isbn),
			attribute.String("reader.subscriber", subscriberNumber),
		),
	)
	defer span.End()

	return s.check(ctx, s.store, isbn, subscriberNumber, s.dayOf(date))
}

func (s *service) check(ctx context.Context, repo storage.Repository, isbn, subscriberNumber string, day time.Time) (Eligibility, error) {
	book, err := repo.FindBook(ctx, isbn)
	if err != nil {
		return Eligibility{}, lookupFailure("find book", isbn, err)
	}
	reader, err := repo.FindReader(ctx, subscriberNumber)
	if err != nil {
		return Eligibility{}, lookupFailure("find reader", subscriberNumber, err)
	}
	open, err := repo.OpenLoanForBook(ctx, isbn)
	if err != nil {
		return Eligibility{}, storageFailure("find open loan", err)
	}
	loans, err := repo.LoansByReader(ctx, subscriberNumber)
	if err != nil {
		return Eligibility{}, storageFailure("list reader loans", err)
	}

	elig := Eligibility{
		Book:             book,
		Reader:           reader,
		Available:        book.Available() && open == nil,
		DueDate:          ledger.DueDate(day, s.loanDays(reader)),
		MonthlyLoanLimit: s.policy.MonthlyLoanLimit,
		OverdueLoans:     []ledger.Loan{},
	}
	for _, l := range loans {
		if ledger.SameMonth(l.BorrowDate, day) {
			elig.MonthlyLoanCount++
		}
		if l.IsOverdue(day) {
			elig.OverdueLoans = append(elig.OverdueLoans, l)
		}
	}
	elig.MonthlyLimitReached = s.policy.MonthlyLoanLimit > 0 && elig.MonthlyLoanCount >= s.policy.MonthlyLoanLimit
	return elig, nil
}

// Return closes an open loan and makes the book available again.
func (s *service) Return(ctx context.Context, loanID string, date time.Time) (ledger.Loan, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.return",
		trace.WithAttributes(attribute.String("loan.id", loanID)),
	)
	defer span.End()
	defer observe("return", time.Now())

	day := s.dayOf(date)
	var returned ledger.Loan

	err := s.mutate(ctx, "return", func(ctx context.Context, tx *txn) error {
		loan, err := tx.repo.FindLoan(ctx, loanID)
		if err != nil {
			return lookupFailure("find loan", loanID, err)
		}
		if loan.Returned {
			return fmt.Errorf("%w: %s", ErrAlreadyReturned, loanID)
		}

		if err := tx.repo.MarkReturned(ctx, loanID, day); err != nil {
			return storageFailure("mark loan returned", err)
		}

		book, err := tx.repo.FindBook(ctx, loan.BookISBN)
		switch {
		case errors.Is(err, catalog.ErrBookNotFound):
			s.log.Warn("returned loan references a missing book",
				zap.String("loan_id", loanID),
				zap.String("isbn", loan.BookISBN),
			)
		case err != nil:
			return storageFailure("find book", err)
		default:
			book.Status = catalog.StatusAvailable
			if err := tx.repo.UpsertBook(ctx, book); err != nil {
				return storageFailure("mark book available", err)
			}
		}

		if err := tx.record(ctx, journal.LoanReturned, loanID, LoanReturnedEvent{
			LoanID:           loanID,
			BookISBN:         loan.BookISBN,
			SubscriberNumber: loan.SubscriberNumber,
			ReturnDate:       day,
			DaysLate:         loan.DaysOverdue(day),
		}); err != nil {
			return err
		}

		loan.Returned = true
		loan.ReturnDate = &day
		returned = loan
		return nil
	})
	countOutcome(metrics.Returns, err)
	if err != nil {
		span.RecordError(err)
		s.log.Warn("return refused",
			zap.String("loan_id", loanID),
			zap.String("kind", KindOf(err).String()),
			zap.Error(err),
		)
		return ledger.Loan{}, err
	}

	s.log.Info("loan returned",
		zap.String("loan_id", returned.ID),
		zap.String("isbn", returned.BookISBN),
		zap.String("subscriber", returned.SubscriberNumber),
	)
	return returned, nil
}

// Journal reads committed events after the given sequence number.
func (s *service) Journal(ctx context.Context, afterSeq int64, limit int) ([]journal.Event, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.journal")
	defer span.End()

	events, err := s.store.Events(ctx, afterSeq, limit)
	if err != nil {
		return nil, storageFailure("read journal", err)
	}
	return events, nil
}

// Subscribe registers l for every event committed from now on.
func (s *service) Subscribe(l Listener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, l)
}

// txn is the unit of work handed to a mutation.
type txn struct {
	repo   storage.Repository
	at     time.Time
	events []journal.Event
}

func (t *txn) record(ctx context.Context, eventType journal.EventType, subjectID string, payload interface{}) error {
	ev, err := journal.NewEvent(eventType, subjectID, payload, t.at)
	if err != nil {
		return storageFailure("encode event", err)
	}
	ev, err = t.repo.AppendEvent(ctx, ev)
	if err != nil {
		return storageFailure("append event", err)
	}
	t.events = append(t.events, ev)
	return nil
}

// mutate runs fn in one storage transaction under the engine lock and then
// hands the committed events to the listeners.
func (s *service) mutate(ctx context.Context, op string, fn func(ctx context.Context, tx *txn) error) error {
	committed, err := s.locked(ctx, fn)
	if err != nil {
		if KindOf(err) == KindStorageFailure {
			s.log.Error("circulation operation failed", zap.String("operation", op), zap.Error(err))
		}
		return storageFailure(op, err)
	}

	s.notify(ctx, committed)
	return nil
}

// locked holds the engine lock for the transaction only. The deferred unlock
// keeps the engine usable after a store panics.
func (s *service) locked(ctx context.Context, fn func(ctx context.Context, tx *txn) error) ([]journal.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var committed []journal.Event
	err := s.store.InTx(ctx, func(ctx context.Context, repo storage.Repository) error {
		tx := &txn{repo: repo, at: s.now()}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		committed = tx.events
		return nil
	})
	return committed, err
}

func (s *service) notify(ctx context.Context, events []journal.Event) {
	s.listenersMu.RLock()
	listeners := append([]Listener(nil), s.listeners...)
	s.listenersMu.RUnlock()

	for _, ev := range events {
		for _, l := range listeners {
			if err := l(ctx, ev); err != nil {
				s.log.Warn("event listener failed",
					zap.Int64("seq", ev.Seq),
					zap.String("type", string(ev.Type)),
					zap.Error(err),
				)
			}
		}
	}
}

func (s *service) dayOf(date time.Time) time.Time {
	if date.IsZero() {
		return ledger.Day(s.now())
	}
	return ledger.Day(date)
}

func (s *service) loanDays(r catalog.Reader) int {
	if r.MaxLoanDays > 0 {
		return r.MaxLoanDays
	}
	return s.policy.DefaultLoanDays
}

func lookupFailure(op, id string, err error) error {
	if _, ok := domainKind(err); ok {
		return fmt.Errorf("%w: %s", err, id)
	}
	return storageFailure(op, err)
}
