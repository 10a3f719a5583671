// internal/storage/storage.go
package storage

import (
	"context"
	"errors"
	"libradesk/internal/catalog"
	"libradesk/internal/journal"
	"libradesk/internal/ledger"
)

var (
	// ErrDuplicate is returned when a write collides with an existing key,
	// including a second open loan for the same book.
	ErrDuplicate = errors.New("duplicate key")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store is closed")
)

// Repository is the full set of catalog, ledger and journal operations.
type Repository interface {
	catalog.Store
	ledger.Ledger
	journal.Journal
}

// Store is a Repository that can group writes into one transaction.
// If fn returns an error nothing it wrote is kept.
type Store interface {
	Repository
	InTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
	Ping(ctx context.Context) error
	Close() error
}
