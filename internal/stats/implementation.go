// internal/stats/implementation.go
package stats

import (
	"context"
	"fmt"
	"libradesk/internal/ledger"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type service struct {
	src    Source
	log    *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewService creates the analyzer over src.
func NewService(src Source, log *zap.Logger) Service {
	return &service{
		src:    src,
		log:    log,
		tracer: otel.Tracer("libradesk/stats"),
		now:    time.Now,
	}
}

func (s *service) day(date time.Time) time.Time {
	if date.IsZero() {
		return ledger.Day(s.now())
	}
	return ledger.Day(date)
}

func (s *service) AllOverdueLoans(ctx context.Context, date time.Time) ([]OverdueLoan, error) {
	ctx, span := s.tracer.Start(ctx, "stats.all_overdue")
	defer span.End()

	loans, err := s.src.AllLoans(ctx)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	overdue := overdueOf(loans, s.day(date))
	span.SetAttributes(attribute.Int("overdue.count", len(overdue)))
	return overdue, nil
}

func (s *service) OverdueLoansForReader(ctx context.Context, subscriberNumber string, date time.Time) ([]OverdueLoan, error) {
	ctx, span := s.tracer.Start(ctx, "stats.reader_overdue",
		trace.WithAttributes(attribute.String("reader.subscriber", subscriberNumber)))
	defer span.End()

	loans, err := s.src.LoansByReader(ctx, subscriberNumber)
	if err != nil {
		return nil, fmt.Errorf("list reader loans: %w", err)
	}
	return overdueOf(loans, s.day(date)), nil
}

func (s *service) ActiveLoansForReader(ctx context.Context, subscriberNumber string) ([]ledger.Loan, error) {
	ctx, span := s.tracer.Start(ctx, "stats.reader_active",
		trace.WithAttributes(attribute.String("reader.subscriber", subscriberNumber)))
	defer span.End()

	loans, err := s.src.LoansByReader(ctx, subscriberNumber)
	if err != nil {
		return nil, fmt.Errorf("list reader loans: %w", err)
	}
	active := []ledger.Loan{}
	for _, l := range loans {
		if l.IsOpen() {
			active = append(active, l)
		}
	}
	return active, nil
}

// TopBorrowedBooks ranks ISBNs by loan count. Ties keep the order in which the
// ISBN first appears in the ledger.
func (s *service) TopBorrowedBooks(ctx context.Context, n int) ([]BookCount, error) {
	ctx, span := s.tracer.Start(ctx, "stats.top_borrowed", trace.WithAttributes(attribute.Int("n", n)))
	defer span.End()

	if n <= 0 {
		return []BookCount{}, nil
	}

	loans, err := s.src.AllLoans(ctx)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}

	index := make(map[string]int)
	counts := []BookCount{}
	for _, l := range loans {
		i, ok := index[l.BookISBN]
		if !ok {
			i = len(counts)
			index[l.BookISBN] = i
			counts = append(counts, BookCount{ISBN: l.BookISBN})
		}
		counts[i].Count++
	}
	sort.SliceStable(counts, func(i, j int) bool { return counts[i].Count > counts[j].Count })
	if len(counts) > n {
		counts = counts[:n]
	}

	books, err := s.src.AllBooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	titles := make(map[string]string, len(books))
	for _, b := range books {
		titles[b.ISBN] = b.Title
	}
	for i := range counts {
		counts[i].Title = titles[counts[i].ISBN]
	}
	return counts, nil
}

func (s *service) LoansCountByReader(ctx context.Context) (map[string]int, error) {
	ctx, span := s.tracer.Start(ctx, "stats.loans_by_reader")
	defer span.End()

	loans, err := s.src.AllLoans(ctx)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	counts := make(map[string]int)
	for _, l := range loans {
		counts[l.SubscriberNumber]++
	}
	return counts, nil
}

// ReaderLoanCounts lists every registered reader with their loan count, busiest
// first, followed by subscriber numbers that only remain in loan history.
func (s *service) ReaderLoanCounts(ctx context.Context) ([]ReaderCount, error) {
	counts, err := s.LoansCountByReader(ctx)
	if err != nil {
		return nil, err
	}
	readers, err := s.src.AllReaders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list readers: %w", err)
	}

	rows := make([]ReaderCount, 0, len(readers))
	known := make(map[string]bool, len(readers))
	for _, r := range readers {
		known[r.SubscriberNumber] = true
		rows = append(rows, ReaderCount{
			SubscriberNumber: r.SubscriberNumber,
			Name:             r.FullName(),
			Count:            counts[r.SubscriberNumber],
		})
	}

	var orphans []string
	for sub := range counts {
		if !known[sub] {
			orphans = append(orphans, sub)
		}
	}
	sort.Strings(orphans)
	for _, sub := range orphans {
		rows = append(rows, ReaderCount{SubscriberNumber: sub, Count: counts[sub]})
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Count > rows[j].Count })
	return rows, nil
}

func (s *service) Summary(ctx context.Context, date time.Time) (Summary, error) {
	ctx, span := s.tracer.Start(ctx, "stats.summary")
	defer span.End()

	books, err := s.src.AllBooks(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list books: %w", err)
	}
	readers, err := s.src.AllReaders(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list readers: %w", err)
	}
	loans, err := s.src.AllLoans(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list loans: %w", err)
	}

	day := s.day(date)
	sum := Summary{Books: len(books), Readers: len(readers), Loans: len(loans)}
	for _, l := range loans {
		if l.IsOpen() {
			sum.OpenLoans++
		}
		if l.IsOverdue(day) {
			sum.OverdueLoans++
		}
	}

	s.log.Debug("statistics summary",
		zap.Int("books", sum.Books),
		zap.Int("readers", sum.Readers),
		zap.Int("loans", sum.Loans),
		zap.Int("overdue", sum.OverdueLoans),
	)
	return sum, nil
}

func overdueOf(loans []ledger.Loan, day time.Time) []OverdueLoan {
	out := []OverdueLoan{}
	for _, l := range loans {
		if l.IsOverdue(day) {
			out = append(out, OverdueLoan{Loan: l, DaysOverdue: l.DaysOverdue(day)})
		}
	}
	return out
}
