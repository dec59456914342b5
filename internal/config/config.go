package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Config holds all configuration for the application
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Ledger
	RPCURL          string
	ContractAddress string
	ChainID         int64
	DeployBlock     uint64
	PrivateKey      string

	// Bet round
	MinBet        decimal.Decimal
	RollDuration  time.Duration
	DisplayWindow time.Duration

	// History
	HistoryPageSize      int
	ReceiptPollInterval  time.Duration
	TimestampConcurrency int
	Timezone             *time.Location

	// Sessions
	RedisURL     string
	RedisPass    string
	RedisDB      int
	JWTSecret    string
	JWTTTL       time.Duration
	BetRateLimit int
}

// Load reads the configuration from environment variables. Callers load the
// .env file beforehand.
func Load() (*Config, error) {
	var err error
	cfg := &Config{
		Port:            getEnvWithDefault("PORT", "8080"),
		Env:             getEnvWithDefault("ENV", "development"),
		LogLevel:        getEnvWithDefault("LOG_LEVEL", "info"),
		RPCURL:          os.Getenv("RPC_URL"),
		ContractAddress: os.Getenv("CONTRACT_ADDRESS"),
		PrivateKey:      strings.TrimPrefix(os.Getenv("PRIVATE_KEY"), "0x"),
		RedisURL:        getEnvWithDefault("REDIS_URL", "localhost:6379"),
		RedisPass:       os.Getenv("REDIS_PASS"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
	}

	if cfg.ChainID, err = getInt64("CHAIN_ID", 11155111); err != nil {
		return nil, err
	}
	if cfg.DeployBlock, err = getUint64("DEPLOY_BLOCK", 0); err != nil {
		return nil, err
	}
	if cfg.MinBet, err = getDecimal("MIN_BET", "0.001"); err != nil {
		return nil, err
	}
	if cfg.RollDuration, err = getDuration("ROLL_DURATION", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.DisplayWindow, err = getDuration("DISPLAY_WINDOW", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.HistoryPageSize, err = getInt("HISTORY_PAGE_SIZE", 20); err != nil {
		return nil, err
	}
	if cfg.ReceiptPollInterval, err = getDuration("RECEIPT_POLL_INTERVAL", time.Second); err != nil {
		return nil, err
	}
	if cfg.TimestampConcurrency, err = getInt("TIMESTAMP_CONCURRENCY", 8); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.JWTTTL, err = getDuration("JWT_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.BetRateLimit, err = getInt("BET_RATE_LIMIT", 30); err != nil {
		return nil, err
	}

	tz := getEnvWithDefault("TIMEZONE", "UTC")
	if cfg.Timezone, err = time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", tz, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks if all required configuration is present
func (c *Config) validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}
	if !common.IsHexAddress(c.ContractAddress) {
		return fmt.Errorf("CONTRACT_ADDRESS must be a hex address, got %q", c.ContractAddress)
	}
	if c.ChainID <= 0 {
		return fmt.Errorf("CHAIN_ID must be positive")
	}
	if !c.MinBet.IsPositive() {
		return fmt.Errorf("MIN_BET must be positive")
	}
	if c.RollDuration < 0 || c.DisplayWindow < 0 {
		return fmt.Errorf("ROLL_DURATION and DISPLAY_WINDOW must not be negative")
	}
	if c.HistoryPageSize <= 0 {
		return fmt.Errorf("HISTORY_PAGE_SIZE must be positive")
	}
	if c.ReceiptPollInterval <= 0 {
		return fmt.Errorf("RECEIPT_POLL_INTERVAL must be positive")
	}
	if c.TimestampConcurrency <= 0 {
		return fmt.Errorf("TIMESTAMP_CONCURRENCY must be positive")
	}
	if c.BetRateLimit <= 0 {
		return fmt.Errorf("BET_RATE_LIMIT must be positive")
	}
	return nil
}

// RequireAPI checks the settings only the HTTP server needs.
func (c *Config) RequireAPI() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) HasSigner() bool {
	return c.PrivateKey != ""
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func getInt64(key string, defaultValue int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func getUint64(key string, defaultValue uint64) (uint64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func getDecimal(key, defaultValue string) (decimal.Decimal, error) {
	raw := getEnvWithDefault(key, defaultValue)
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}
