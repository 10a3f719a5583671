// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for libradesk
type Config struct {
	ServiceName  string         `yaml:"service_name"`
	LogLevel     string         `yaml:"log_level"`
	Database     DatabaseConfig `yaml:"database"`
	HTTP         HTTPConfig     `yaml:"http"`
	Lending      LendingConfig  `yaml:"lending"`
	RabbitMQURL  string         `yaml:"rabbitmq_url"`
	OTLPEndpoint string         `yaml:"otlp_endpoint"`
}

// DatabaseConfig selects the store. Driver "memory" keeps everything in process.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type HTTPConfig struct {
	Port               string `yaml:"port"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
}

type LendingConfig struct {
	MonthlyLoanLimit    int  `yaml:"monthly_loan_limit"`
	EnforceMonthlyLimit bool `yaml:"enforce_monthly_limit"`
	DefaultLoanDays     int  `yaml:"default_loan_days"`
}

// Supported database drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverPGX      = "pgx"
)

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		ServiceName: "libradesk",
		LogLevel:    "info",
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			DSN:    "file:libradesk.db?_busy_timeout=5000",
		},
		HTTP: HTTPConfig{
			Port:               "8080",
			RateLimitPerMinute: 600,
		},
		Lending: LendingConfig{
			MonthlyLoanLimit:    2,
			EnforceMonthlyLimit: false,
			DefaultLoanDays:     14,
		},
	}
}

// Load applies defaults, then the YAML file at path (if any), then environment
// variables, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Database.Driver = getEnv("LIBRADESK_DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("DATABASE_URL", c.Database.DSN)
	c.HTTP.Port = getEnv("PORT", c.HTTP.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.RabbitMQURL = getEnv("RABBITMQ_URL", c.RabbitMQURL)
	c.OTLPEndpoint = getEnv("OTLP_ENDPOINT", c.OTLPEndpoint)

	var err error
	if c.Lending.MonthlyLoanLimit, err = getEnvInt("MONTHLY_LOAN_LIMIT", c.Lending.MonthlyLoanLimit); err != nil {
		return err
	}
	if c.Lending.DefaultLoanDays, err = getEnvInt("DEFAULT_LOAN_DAYS", c.Lending.DefaultLoanDays); err != nil {
		return err
	}
	if c.HTTP.RateLimitPerMinute, err = getEnvInt("RATE_LIMIT_PER_MINUTE", c.HTTP.RateLimitPerMinute); err != nil {
		return err
	}
	if c.Lending.EnforceMonthlyLimit, err = getEnvBool("ENFORCE_MONTHLY_LIMIT", c.Lending.EnforceMonthlyLimit); err != nil {
		return err
	}
	return nil
}

// Validate rejects settings the rest of the program cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case DriverMemory, DriverSQLite, DriverPostgres, DriverPGX:
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}
	if c.Database.Driver != DriverMemory && strings.TrimSpace(c.Database.DSN) == "" {
		errs = append(errs, errors.New("database dsn is required"))
	}
	if c.Lending.MonthlyLoanLimit < 0 {
		errs = append(errs, errors.New("monthly_loan_limit must not be negative"))
	}
	if c.Lending.DefaultLoanDays <= 0 {
		errs = append(errs, errors.New("default_loan_days must be positive"))
	}
	if c.HTTP.RateLimitPerMinute <= 0 {
		errs = append(errs, errors.New("rate_limit_per_minute must be positive"))
	}
	if c.HTTP.Port == "" {
		errs = append(errs, errors.New("http port is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
