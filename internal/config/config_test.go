package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "8080", cfg.HTTP.Port)
	assert.Equal(t, 2, cfg.Lending.MonthlyLoanLimit)
	assert.False(t, cfg.Lending.EnforceMonthlyLimit)
	assert.Equal(t, 14, cfg.Lending.DefaultLoanDays)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "libradesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
database:
  driver: postgres
  dsn: postgres://localhost/libradesk
lending:
  monthly_loan_limit: 5
  enforce_monthly_limit: true
`), 0o600))

	t.Setenv("PORT", "9999")
	t.Setenv("MONTHLY_LOAN_LIMIT", "3")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "9999", cfg.HTTP.Port)
	assert.Equal(t, 3, cfg.Lending.MonthlyLoanLimit)
	assert.True(t, cfg.Lending.EnforceMonthlyLimit)
	assert.Equal(t, 14, cfg.Lending.DefaultLoanDays)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("LIBRADESK_DB_DRIVER", "oracle")
	_, err := Load("")
	assert.ErrorContains(t, err, "unknown database driver")
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	t.Setenv("DEFAULT_LOAN_DAYS", "two weeks")
	_, err := Load("")
	assert.ErrorContains(t, err, "DEFAULT_LOAN_DAYS")
}

func TestLoadRejectsBadBool(t *testing.T) {
	t.Setenv("ENFORCE_MONTHLY_LIMIT", "maybe")
	_, err := Load("")
	assert.ErrorContains(t, err, "ENFORCE_MONTHLY_LIMIT")
}

func TestMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateMemoryNeedsNoDSN(t *testing.T) {
	cfg := Default()
	cfg.Database = DatabaseConfig{Driver: DriverMemory}
	assert.NoError(t, cfg.Validate())

	cfg.Lending.DefaultLoanDays = 0
	assert.ErrorContains(t, cfg.Validate(), "default_loan_days")
}
