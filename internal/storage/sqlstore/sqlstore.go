// internal/storage/sqlstore/sqlstore.go
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"libradesk/internal/storage"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Supported database/sql driver names.
const (
	DriverPostgres = "postgres"
	DriverPGX      = "pgx"
	DriverSQLite   = "sqlite3"
)

// Store is a storage.Store backed by a SQL database.
type Store struct {
	repo
	db  *sqlx.DB
	log *zap.Logger
}

var _ storage.Store = (*Store)(nil)

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, driver, dsn string, log *zap.Logger) (*Store, error) {
	dialect, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	log.Info("connected to database", zap.String("driver", driver))

	return &Store{
		repo: newRepo(db, dialect, driver),
		db:   db,
		log:  log,
	}, nil
}

func dialectFor(driver string) (goqu.DialectWrapper, error) {
	switch driver {
	case DriverPostgres, DriverPGX:
		return goqu.Dialect("postgres"), nil
	case DriverSQLite:
		return goqu.Dialect("sqlite3"), nil
	default:
		return goqu.DialectWrapper{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// InTx runs fn inside a database transaction and commits when it returns nil.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, repo storage.Repository) error) error {
	ctx, span := tracer.Start(ctx, "sqlstore.tx")
	defer span.End()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, newRepo(tx, s.dialect, s.driver)); err != nil {
		span.SetAttributes(attribute.Bool("tx.rolled_back", true))
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for migrations and health checks.
func (s *Store) DB() *sql.DB {
	return s.db.DB
}

var tracer = otel.Tracer("libradesk/sqlstore")

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
