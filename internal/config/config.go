// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Supported storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Supported log output formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	DBDriver    string
	DBPath      string
	DatabaseDSN string
	ListenAddr  string
	LogLevel    slog.Level
	LogFormat   string
}

// Load reads configuration from environment variables and returns a validated Config.
// Optional variables with defaults: BOTACCOUNTS_DB_DRIVER (sqlite),
// BOTACCOUNTS_DB_PATH (bot_data.db), BOTACCOUNTS_LISTEN_ADDR (127.0.0.1:8080),
// BOTACCOUNTS_LOG_LEVEL (info), BOTACCOUNTS_LOG_FORMAT (text).
// BOTACCOUNTS_DATABASE_DSN is required when the driver is postgres.
func Load() (*Config, error) {
	driver := DriverSQLite
	if v, ok := os.LookupEnv("BOTACCOUNTS_DB_DRIVER"); ok && v != "" {
		driver = strings.ToLower(strings.TrimSpace(v))
	}
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("BOTACCOUNTS_DB_DRIVER has unsupported value %q (want %s or %s)", driver, DriverSQLite, DriverPostgres)
	}

	dbPath := "bot_data.db"
	if v, ok := os.LookupEnv("BOTACCOUNTS_DB_PATH"); ok {
		dbPath = v
	}

	dsn := os.Getenv("BOTACCOUNTS_DATABASE_DSN")
	if driver == DriverPostgres && dsn == "" {
		return nil, fmt.Errorf("BOTACCOUNTS_DATABASE_DSN is required when BOTACCOUNTS_DB_DRIVER is %s", DriverPostgres)
	}

	listenAddr := "127.0.0.1:8080"
	if v, ok := os.LookupEnv("BOTACCOUNTS_LISTEN_ADDR"); ok {
		listenAddr = v
	}

	level := slog.LevelInfo
	if v, ok := os.LookupEnv("BOTACCOUNTS_LOG_LEVEL"); ok && v != "" {
		if err := level.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("BOTACCOUNTS_LOG_LEVEL has invalid level %q: %w", v, err)
		}
	}

	format := LogFormatText
	if v, ok := os.LookupEnv("BOTACCOUNTS_LOG_FORMAT"); ok && v != "" {
		format = strings.ToLower(v)
	}
	if format != LogFormatText && format != LogFormatJSON {
		return nil, fmt.Errorf("BOTACCOUNTS_LOG_FORMAT has unsupported value %q (want %s or %s)", format, LogFormatText, LogFormatJSON)
	}

	return &Config{
		DBDriver:    driver,
		DBPath:      dbPath,
		DatabaseDSN: dsn,
		ListenAddr:  listenAddr,
		LogLevel:    level,
		LogFormat:   format,
	}, nil
}

// NewLogger builds the process logger from the configured level and format.
func (c *Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == LogFormatJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
