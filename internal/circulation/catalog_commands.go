// internal/circulation/catalog_commands.go
package circulation

import (
	"context"
	"errors"
	"fmt"
	"libradesk/internal/catalog"
	"libradesk/internal/journal"
	"libradesk/internal/metrics"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// AddBook stores a new book. New books are always available.
func (s *service) AddBook(ctx context.Context, book catalog.Book) (catalog.Book, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.add_book", trace.WithAttributes(attribute.String("book.isbn", book.ISBN)))
	defer span.End()

	book.Status = catalog.StatusAvailable
	err := catalog.ValidateBook(book)
	if err == nil {
		err = s.mutate(ctx, "add book", func(ctx context.Context, tx *txn) error {
			if err := s.ensureNoBook(ctx, tx, book.ISBN); err != nil {
				return err
			}
			if err := tx.repo.UpsertBook(ctx, book); err != nil {
				return storageFailure("insert book", err)
			}
			return tx.record(ctx, journal.BookAdded, book.ISBN, book)
		})
	}
	countCommand("add_book", err)
	if err != nil {
		return catalog.Book{}, err
	}

	s.log.Info("book added", zap.String("isbn", book.ISBN), zap.String("title", book.Title))
	return book, nil
}

// UpdateBook edits the descriptive fields of a book. The stored status is kept.
func (s *service) UpdateBook(ctx context.Context, book catalog.Book) (catalog.Book, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.update_book", trace.WithAttributes(attribute.String("book.isbn", book.ISBN)))
	defer span.End()

	if book.Status == "" {
		book.Status = catalog.StatusAvailable
	}
	err := catalog.ValidateBook(book)
	if err == nil {
		err = s.mutate(ctx, "update book", func(ctx context.Context, tx *txn) error {
			existing, err := tx.repo.FindBook(ctx, book.ISBN)
			if err != nil {
				return lookupFailure("find book", book.ISBN, err)
			}
			book.Status = existing.Status
			if err := tx.repo.UpsertBook(ctx, book); err != nil {
				return storageFailure("update book", err)
			}
			return tx.record(ctx, journal.BookUpdated, book.ISBN, book)
		})
	}
	countCommand("update_book", err)
	if err != nil {
		return catalog.Book{}, err
	}

	s.log.Info("book updated", zap.String("isbn", book.ISBN))
	return book, nil
}

// RemoveBook deletes a book that is not on loan. Its loan history is kept.
func (s *service) RemoveBook(ctx context.Context, isbn string) error {
	ctx, span := s.tracer.Start(ctx, "circulation.remove_book", trace.WithAttributes(attribute.String("book.isbn", isbn)))
	defer span.End()

	err := s.mutate(ctx, "remove book", func(ctx context.Context, tx *txn) error {
		book, err := tx.repo.FindBook(ctx, isbn)
		if err != nil {
			return lookupFailure("find book", isbn, err)
		}
		open, err := tx.repo.OpenLoanForBook(ctx, isbn)
		if err != nil {
			return storageFailure("find open loan", err)
		}
		if !book.Available() || open != nil {
			return fmt.Errorf("%w: %s", ErrBookOnLoan, isbn)
		}
		if err := tx.repo.DeleteBook(ctx, isbn); err != nil {
			return storageFailure("delete book", err)
		}
		return tx.record(ctx, journal.BookRemoved, isbn, RemovedEvent{ID: isbn})
	})
	countCommand("remove_book", err)
	if err != nil {
		return err
	}

	s.log.Info("book removed", zap.String("isbn", isbn))
	return nil
}

// RegisterReader stores a new reader.
func (s *service) RegisterReader(ctx context.Context, reader catalog.Reader) (catalog.Reader, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.register_reader",
		trace.WithAttributes(attribute.String("reader.subscriber", reader.SubscriberNumber)))
	defer span.End()

	err := catalog.ValidateReader(reader)
	if err == nil {
		err = s.mutate(ctx, "register reader", func(ctx context.Context, tx *txn) error {
			if err := s.ensureNoReader(ctx, tx, reader.SubscriberNumber); err != nil {
				return err
			}
			if err := tx.repo.UpsertReader(ctx, reader); err != nil {
				return storageFailure("insert reader", err)
			}
			return tx.record(ctx, journal.ReaderRegistered, reader.SubscriberNumber, reader)
		})
	}
	countCommand("register_reader", err)
	if err != nil {
		return catalog.Reader{}, err
	}

	s.log.Info("reader registered", zap.Stringer("reader", reader))
	return reader, nil
}

// UpdateReader edits a reader. Loans already open keep their due date.
func (s *service) UpdateReader(ctx context.Context, reader catalog.Reader) (catalog.Reader, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.update_reader",
		trace.WithAttributes(attribute.String("reader.subscriber", reader.SubscriberNumber)))
	defer span.End()

	err := catalog.ValidateReader(reader)
	if err == nil {
		err = s.mutate(ctx, "update reader", func(ctx context.Context, tx *txn) error {
			if _, err := tx.repo.FindReader(ctx, reader.SubscriberNumber); err != nil {
				return lookupFailure("find reader", reader.SubscriberNumber, err)
			}
			if err := tx.repo.UpsertReader(ctx, reader); err != nil {
				return storageFailure("update reader", err)
			}
			return tx.record(ctx, journal.ReaderUpdated, reader.SubscriberNumber, reader)
		})
	}
	countCommand("update_reader", err)
	if err != nil {
		return catalog.Reader{}, err
	}

	s.log.Info("reader updated", zap.Stringer("reader", reader))
	return reader, nil
}

// RemoveReader deletes a reader without open loans. Their loan history is kept.
func (s *service) RemoveReader(ctx context.Context, subscriberNumber string) error {
	ctx, span := s.tracer.Start(ctx, "circulation.remove_reader",
		trace.WithAttributes(attribute.String("reader.subscriber", subscriberNumber)))
	defer span.End()

	err := s.mutate(ctx, "remove reader", func(ctx context.Context, tx *txn) error {
		if _, err := tx.repo.FindReader(ctx, subscriberNumber); err != nil {
			return lookupFailure("find reader", subscriberNumber, err)
		}
		loans, err := tx.repo.LoansByReader(ctx, subscriberNumber)
		if err != nil {
			return storageFailure("list reader loans", err)
		}
		for _, l := range loans {
			if l.IsOpen() {
				return fmt.Errorf("%w: %s", ErrReaderHasOpenLoans, subscriberNumber)
			}
		}
		if err := tx.repo.DeleteReader(ctx, subscriberNumber); err != nil {
			return storageFailure("delete reader", err)
		}
		return tx.record(ctx, journal.ReaderRemoved, subscriberNumber, RemovedEvent{ID: subscriberNumber})
	})
	countCommand("remove_reader", err)
	if err != nil {
		return err
	}

	s.log.Info("reader removed", zap.String("subscriber", subscriberNumber))
	return nil
}

// ImportBooks adds every book whose ISBN is not known yet. Invalid records are
// counted and skipped; the batch commits as a whole.
func (s *service) ImportBooks(ctx context.Context, books []catalog.Book) (ImportReport, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.import_books", trace.WithAttributes(attribute.Int("records", len(books))))
	defer span.End()
	defer observe("import_books", time.Now())

	var report ImportReport
	err := s.mutate(ctx, "import books", func(ctx context.Context, tx *txn) error {
		report = ImportReport{}
		for _, book := range books {
			// no open loan backs an imported BORROWED status
			normalized := book.Status == catalog.StatusBorrowed
			book.Status = catalog.StatusAvailable
			if err := catalog.ValidateBook(book); err != nil {
				s.log.Warn("skipping invalid book", zap.String("isbn", book.ISBN), zap.Error(err))
				report.Invalid++
				continue
			}
			if err := s.ensureNoBook(ctx, tx, book.ISBN); err != nil {
				if errors.Is(err, ErrDuplicate) {
					report.Skipped++
					continue
				}
				return err
			}
			if err := tx.repo.UpsertBook(ctx, book); err != nil {
				return storageFailure("insert book", err)
			}
			if err := tx.record(ctx, journal.BookAdded, book.ISBN, book); err != nil {
				return err
			}
			report.Imported++
			if normalized {
				report.Normalized++
			}
		}
		return nil
	})
	countCommand("import_books", err)
	if err != nil {
		return ImportReport{}, err
	}

	metrics.ImportedRecords.WithLabelValues("books").Add(float64(report.Imported))
	s.log.Info("books imported",
		zap.Int("imported", report.Imported),
		zap.Int("skipped", report.Skipped),
		zap.Int("invalid", report.Invalid),
		zap.Int("normalized", report.Normalized),
	)
	return report, nil
}

// ImportReaders adds every reader whose subscriber number is not known yet.
func (s *service) ImportReaders(ctx context.Context, readers []catalog.Reader) (ImportReport, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.import_readers", trace.WithAttributes(attribute.Int("records", len(readers))))
	defer span.End()
	defer observe("import_readers", time.Now())

	var report ImportReport
	err := s.mutate(ctx, "import readers", func(ctx context.Context, tx *txn) error {
		report = ImportReport{}
		for _, reader := range readers {
			if reader.MaxLoanDays <= 0 {
				reader.MaxLoanDays = s.policy.DefaultLoanDays
			}
			if err := catalog.ValidateReader(reader); err != nil {
				s.log.Warn("skipping invalid reader", zap.String("subscriber", reader.SubscriberNumber), zap.Error(err))
				report.Invalid++
				continue
			}
			if err := s.ensureNoReader(ctx, tx, reader.SubscriberNumber); err != nil {
				if errors.Is(err, ErrDuplicate) {
					report.Skipped++
					continue
				}
				return err
			}
			if err := tx.repo.UpsertReader(ctx, reader); err != nil {
				return storageFailure("insert reader", err)
			}
			if err := tx.record(ctx, journal.ReaderRegistered, reader.SubscriberNumber, reader); err != nil {
				return err
			}
			report.Imported++
		}
		return nil
	})
	countCommand("import_readers", err)
	if err != nil {
		return ImportReport{}, err
	}

	metrics.ImportedRecords.WithLabelValues("readers").Add(float64(report.Imported))
	s.log.Info("readers imported",
		zap.Int("imported", report.Imported),
		zap.Int("skipped", report.Skipped),
		zap.Int("invalid", report.Invalid),
	)
	return report, nil
}

func (s *service) ensureNoBook(ctx context.Context, tx *txn, isbn string) error {
	_, err := tx.repo.FindBook(ctx, isbn)
	switch {
	case err == nil:
		return fmt.Errorf("%w: book %s", ErrDuplicate, isbn)
	case errors.Is(err, catalog.ErrBookNotFound):
		return nil
	default:
		return storageFailure("find book", err)
	}
}

func (s *service) ensureNoReader(ctx context.Context, tx *txn, subscriberNumber string) error {
	_, err := tx.repo.FindReader(ctx, subscriberNumber)
	switch {
	case err == nil:
		return fmt.Errorf("%w: reader %s", ErrDuplicate, subscriberNumber)
	case errors.Is(err, catalog.ErrReaderNotFound):
		return nil
	default:
		return storageFailure("find reader", err)
	}
}
