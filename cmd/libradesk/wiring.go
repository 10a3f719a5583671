// cmd/libradesk/wiring.go
package main

import (
	"context"
	"fmt"
	"libradesk/internal/circulation"
	"libradesk/internal/config"
	"libradesk/internal/storage"
	"libradesk/internal/storage/memory"
	"libradesk/internal/storage/sqlstore"

	"go.uber.org/zap"
)

// openStore opens the configured store and brings its schema up to date.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	if cfg.Database.Driver == config.DriverMemory {
		log.Warn("using in-memory store, nothing survives a restart")
		return memory.NewStore(), nil
	}

	store, err := sqlstore.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, log)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

func policyFrom(cfg *config.Config) circulation.Policy {
	return circulation.Policy{
		MonthlyLoanLimit:    cfg.Lending.MonthlyLoanLimit,
		EnforceMonthlyLimit: cfg.Lending.EnforceMonthlyLimit,
		DefaultLoanDays:     cfg.Lending.DefaultLoanDays,
	}
}
