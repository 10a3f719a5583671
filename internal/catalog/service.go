// internal/catalog/service.go
package catalog

import (
	"context"
	"errors"
)

var (
	// ErrBookNotFound is returned when no book has the requested ISBN
	ErrBookNotFound = errors.New("book not found")

	// ErrReaderNotFound is returned when no reader has the requested subscriber number
	ErrReaderNotFound = errors.New("reader not found")

	// ErrInvalid is returned when a record fails validation
	ErrInvalid = errors.New("invalid catalog record")
)

// Store holds the authoritative set of books and readers.
// Lists come back in insertion order.
type Store interface {
	FindBook(ctx context.Context, isbn string) (Book, error)
	FindReader(ctx context.Context, subscriberNumber string) (Reader, error)
	UpsertBook(ctx context.Context, book Book) error
	DeleteBook(ctx context.Context, isbn string) error
	UpsertReader(ctx context.Context, reader Reader) error
	DeleteReader(ctx context.Context, subscriberNumber string) error
	AllBooks(ctx context.Context) ([]Book, error)
	AllReaders(ctx context.Context) ([]Reader, error)
}
