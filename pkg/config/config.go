package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the server configuration.
type Config struct {
	Port             int
	DatabaseDriver   string
	DatabaseURL      string
	LogLevel         string
	LogFormat        string
	AllowOverpayment bool
	MaxPrincipal     decimal.Decimal
	MaxRate          decimal.Decimal
	MaxTermMonths    int
	OTELEndpoint     string
	OTELServiceName  string
}

// LoadConfig reads configuration from the environment, loading a .env file
// first when one exists.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnvInt("PORT", 8080),
		DatabaseDriver:   strings.ToLower(getEnvString("DATABASE_DRIVER", DriverSQLite)),
		DatabaseURL:      getEnvString("DATABASE_URL", "laureateloan.db"),
		LogLevel:         strings.ToLower(getEnvString("LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(getEnvString("LOG_FORMAT", "text")),
		AllowOverpayment: getEnvBool("ALLOW_OVERPAYMENT", true),
		MaxPrincipal:     getEnvDecimal("MAX_PRINCIPAL", decimal.New(1, 9)),
		MaxRate:          getEnvDecimal("MAX_RATE", decimal.NewFromInt(100)),
		MaxTermMonths:    getEnvInt("MAX_TERM_MONTHS", 600),
		OTELEndpoint:     getEnvString("OTEL_ENDPOINT", ""),
		OTELServiceName:  getEnvString("OTEL_SERVICE_NAME", "laureate-loan-api"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unsupported LOG_FORMAT %q", c.LogFormat)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if !c.MaxPrincipal.IsPositive() || !c.MaxRate.IsPositive() || c.MaxTermMonths <= 0 {
		return fmt.Errorf("loan limits must be positive")
	}
	return nil
}

// NewLogger builds a logger with the configured level and format.
func (c *Config) NewLogger() *log.Logger {
	logger := log.New()
	if level, err := log.ParseLevel(c.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if c.LogFormat == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return logger
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
