package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	StorageFile     = "file"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"

	UsageMemory = "memory"
	UsageRedis  = "redis"
)

type Config struct {
	ServerPort string

	StorageBackend string
	DataDir        string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	UsageBackend  string
	RedisAddr     string
	RedisPassword string

	DailyLimit       decimal.Decimal
	GlobalMinBalance decimal.Decimal
	InterestRate     decimal.Decimal
	LoanRate         decimal.Decimal
}

// Policy holds the engine-level rules that are not intrinsic to an account type.
type Policy struct {
	DailyLimit       decimal.Decimal
	GlobalMinBalance decimal.Decimal
	InterestRate     decimal.Decimal
	LoanRate         decimal.Decimal
	LoanMultiplier   decimal.Decimal
	LoanMinBalance   decimal.Decimal
}

func DefaultPolicy() Policy {
	return Policy{
		DailyLimit:       decimal.NewFromInt(50_000),
		GlobalMinBalance: decimal.Zero,
		InterestRate:     decimal.RequireFromString("0.04"),
		LoanRate:         decimal.RequireFromString("0.10"),
		LoanMultiplier:   decimal.NewFromInt(5),
		LoanMinBalance:   decimal.NewFromInt(5000),
	}
}

// Load reads configuration from the environment. A .env file in the working
// directory is honoured when present.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, relying on environment variables")
	}

	defaults := DefaultPolicy()
	return &Config{
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		StorageBackend:   strings.ToLower(getEnv("STORAGE_BACKEND", StorageFile)),
		DataDir:          getEnv("DATA_DIR", "data"),
		DBHost:           getEnv("DB_HOST", "localhost"),
		DBPort:           getEnv("DB_PORT", "5432"),
		DBUser:           getEnv("DB_USER", "postgres"),
		DBPassword:       getEnv("DB_PASSWORD", "password"),
		DBName:           getEnv("DB_NAME", "retail_ledger"),
		UsageBackend:     strings.ToLower(getEnv("USAGE_BACKEND", UsageMemory)),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		DailyLimit:       getEnvDecimal("DAILY_LIMIT", defaults.DailyLimit),
		GlobalMinBalance: getEnvDecimal("GLOBAL_MIN_BALANCE", defaults.GlobalMinBalance),
		InterestRate:     getEnvDecimal("INTEREST_RATE", defaults.InterestRate),
		LoanRate:         getEnvDecimal("LOAN_RATE", defaults.LoanRate),
	}
}

func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)
}

func (c *Config) AccountsFile() string {
	return filepath.Join(c.DataDir, "accounts.json")
}

func (c *Config) TransactionsFile() string {
	return filepath.Join(c.DataDir, "transactions.log")
}

// Policy builds the ledger policy, keeping defaults for anything not configured.
func (c *Config) Policy() Policy {
	p := DefaultPolicy()
	if !c.DailyLimit.IsZero() {
		p.DailyLimit = c.DailyLimit
	}
	p.GlobalMinBalance = c.GlobalMinBalance
	if !c.InterestRate.IsZero() {
		p.InterestRate = c.InterestRate
	}
	if !c.LoanRate.IsZero() {
		p.LoanRate = c.LoanRate
	}
	return p
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() {
		slog.Warn("Ignoring invalid decimal setting", "key", key, "value", v)
		return fallback
	}
	return d
}
