package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	JWTSecret   string `env:"JWT_SECRET,required"`

	BankPrefix     string `env:"BANK_PREFIX,required"`
	BankName       string `env:"BANK_NAME" envDefault:"Local Bank"`
	PrivateKeyPath string `env:"PRIVATE_KEY_PATH" envDefault:"private.key"`

	RegistryURL    string `env:"REGISTRY_URL,required"`
	RegistryAPIKey string `env:"REGISTRY_API_KEY,required"`
	RatesURL       string `env:"RATES_URL" envDefault:"https://api.exchangerate.host/latest"`

	WorkerSchedule      string        `env:"WORKER_SCHEDULE" envDefault:"@every 1s"`
	WorkerBatchSize     int           `env:"WORKER_BATCH_SIZE" envDefault:"100"`
	DispatchTimeout     time.Duration `env:"DISPATCH_TIMEOUT" envDefault:"10s"`
	TransferExpiry      time.Duration `env:"TRANSFER_EXPIRY" envDefault:"72h"`
	MaxDispatchAttempts int           `env:"MAX_DISPATCH_ATTEMPTS" envDefault:"25"`
	RetryBaseDelay      time.Duration `env:"RETRY_BASE_DELAY" envDefault:"1s"`
	RetryMaxDelay       time.Duration `env:"RETRY_MAX_DELAY" envDefault:"10m"`
	StaleClaimAfter     time.Duration `env:"STALE_CLAIM_AFTER" envDefault:"5m"`
	AssertionTTL        time.Duration `env:"ASSERTION_TTL" envDefault:"5m"`
	JWKSCacheTTL        time.Duration `env:"JWKS_CACHE_TTL" envDefault:"10m"`

	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"settlement.events"`

	Port     int    `env:"PORT" envDefault:"3000"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv   string `env:"APP_ENV" envDefault:"production"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config.Load: dotenv: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

func (c Config) validate() error {
	if len(c.BankPrefix) != 3 {
		return fmt.Errorf("BANK_PREFIX must be 3 characters, got %q", c.BankPrefix)
	}
	if c.WorkerBatchSize <= 0 {
		return fmt.Errorf("WORKER_BATCH_SIZE must be positive")
	}
	if c.RetryBaseDelay <= 0 || c.RetryMaxDelay < c.RetryBaseDelay {
		return fmt.Errorf("RETRY_BASE_DELAY must be positive and not exceed RETRY_MAX_DELAY")
	}
	if c.StaleClaimAfter <= c.DispatchTimeout {
		return fmt.Errorf("STALE_CLAIM_AFTER must exceed DISPATCH_TIMEOUT")
	}
	return nil
}
