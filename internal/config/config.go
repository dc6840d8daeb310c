package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string        `env:"APP_NAME" envDefault:"PetNest Settlement"`
	AppEnv         string        `env:"APP_ENV" envDefault:"development"`
	Port           string        `env:"PORT" envDefault:"8080"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	RedisURL       string        `env:"REDIS_URL"`
	RunMigrations  bool          `env:"RUN_MIGRATIONS" envDefault:"true"`
	ShutdownPeriod time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	Wallet     WalletConfig
	Withdrawal WithdrawalConfig
	Payments   PaymentsConfig
	Events     EventsConfig
}

// WalletConfig bounds the optimistic-lock retry loop around wallet mutations.
type WalletConfig struct {
	MaxRetries     int           `env:"WALLET_MAX_RETRIES" envDefault:"5"`
	RetryBaseDelay time.Duration `env:"WALLET_RETRY_BASE_DELAY" envDefault:"10ms"`
}

// WithdrawalConfig holds the cash-out limits and fee schedule.
type WithdrawalConfig struct {
	MinAmount       int64           `env:"WITHDRAWAL_MIN_AMOUNT" envDefault:"50000"`
	MaxAmount       int64           `env:"WITHDRAWAL_MAX_AMOUNT" envDefault:"50000000"`
	FeeFlat         int64           `env:"WITHDRAWAL_FEE_FLAT" envDefault:"0"`
	FeeRate         decimal.Decimal `env:"WITHDRAWAL_FEE_RATE" envDefault:"0"`
	RateLimitPerMin int             `env:"WITHDRAWAL_RATE_LIMIT_PER_MIN" envDefault:"5"`
}

// PaymentsConfig holds gateway secrets and settlement parameters.
type PaymentsConfig struct {
	VNPayHashSecret  string          `env:"VNPAY_HASH_SECRET"`
	PayOSChecksumKey string          `env:"PAYOS_CHECKSUM_KEY"`
	ResultURL        string          `env:"PAYMENT_RESULT_URL" envDefault:"http://localhost:3000/payment/result"`
	CommissionRate   decimal.Decimal `env:"PLATFORM_COMMISSION_RATE" envDefault:"0.1"`
}

// EventsConfig selects where domain events are published.
type EventsConfig struct {
	Sink         string   `env:"EVENT_SINK" envDefault:"log"`
	Channel      string   `env:"EVENT_CHANNEL" envDefault:"settlement.events"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
}

// Load reads configuration values from the environment and populates a Config instance.
// A .env file in the working directory is honoured outside of production.
func Load() (Config, error) {
	if !strings.EqualFold(os.Getenv("APP_ENV"), "production") {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that struct tags cannot express.
func (c Config) Validate() error {
	if !c.IsDev() {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set")
		}
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL must be set")
		}
		if c.Payments.VNPayHashSecret == "" || c.Payments.PayOSChecksumKey == "" {
			return fmt.Errorf("VNPAY_HASH_SECRET and PAYOS_CHECKSUM_KEY must be set")
		}
	}
	if c.Withdrawal.MinAmount <= 0 || c.Withdrawal.MaxAmount < c.Withdrawal.MinAmount {
		return fmt.Errorf("invalid withdrawal bounds [%d, %d]", c.Withdrawal.MinAmount, c.Withdrawal.MaxAmount)
	}
	if c.Withdrawal.FeeFlat < 0 || c.Withdrawal.FeeRate.IsNegative() || c.Withdrawal.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("invalid withdrawal fee schedule")
	}
	if c.Payments.CommissionRate.IsNegative() || c.Payments.CommissionRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("PLATFORM_COMMISSION_RATE must be in [0, 1)")
	}
	if c.Wallet.MaxRetries < 1 {
		return fmt.Errorf("WALLET_MAX_RETRIES must be at least 1")
	}
	switch c.Events.Sink {
	case "log", "redis":
	case "kafka":
		if len(c.Events.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS must be set when EVENT_SINK=kafka")
		}
	default:
		return fmt.Errorf("unknown EVENT_SINK %q", c.Events.Sink)
	}
	return nil
}

// IsDev reports whether the service runs in a local development mode where
// in-memory backends are acceptable.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}
