package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig
	Redis       RedisConfig
	Cache       CacheConfig
	Blacklist   BlacklistConfig
	Retry       RetryConfig
	Sources     SourcesConfig
	Dispatch    DispatchConfig
	Scheduler   SchedulerConfig
	Validator   ValidatorConfig
	Alerts      AlertsConfig
	Environment string
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Port            int `validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// RedisConfig represents Redis configuration
type RedisConfig struct {
	Addr        string `validate:"required"`
	DB          int
	Password    string
	PoolSize    int
	Timeout     time.Duration
	CacheNS     string `validate:"required"`
	BlacklistNS string `validate:"required"`
}

// CacheConfig holds the per-data-type TTLs
type CacheConfig struct {
	USStockTTL      time.Duration `validate:"gt=0"`
	JPStockTTL      time.Duration `validate:"gt=0"`
	MutualFundTTL   time.Duration `validate:"gt=0"`
	ExchangeRateTTL time.Duration `validate:"gt=0"`
	FallbackTTL     time.Duration `validate:"gt=0"`
}

// BlacklistConfig holds the failure thresholds and cooldown windows
type BlacklistConfig struct {
	StockThreshold int           `validate:"gt=0"`
	RateThreshold  int           `validate:"gt=0"`
	StockCooldown  time.Duration `validate:"gt=0"`
	RateCooldown   time.Duration `validate:"gt=0"`
}

// RetryConfig holds the per-source retry policy
type RetryConfig struct {
	MaxAttempts int           `validate:"gt=0"`
	BaseDelay   time.Duration `validate:"gt=0"`
	MaxDelay    time.Duration `validate:"gt=0"`
}

// SourceConfig represents one upstream fetcher
type SourceConfig struct {
	BaseURL   string `validate:"required,url"`
	Timeout   time.Duration
	RateLimit float64
	Burst     int
}

// SourcesConfig represents the upstream fetchers
type SourcesConfig struct {
	Yahoo            SourceConfig
	Stooq            SourceConfig
	Kabutan          SourceConfig
	Minkabu          SourceConfig
	Frankfurter      SourceConfig
	ExchangeRateHost SourceConfig
}

// DispatchConfig holds the worker pool sizes and batch alert bounds
type DispatchConfig struct {
	USStockWorkers      int `validate:"gt=0"`
	JPStockWorkers      int `validate:"gt=0"`
	MutualFundWorkers   int `validate:"gt=0"`
	ExchangeRateWorkers int `validate:"gt=0"`
	AlertFailureRate    float64
	MinBatchForAlert    int
}

// SchedulerConfig holds the maintenance loop settings
type SchedulerConfig struct {
	Interval time.Duration `validate:"gt=0"`
	Enabled  bool
}

// ValidatorConfig holds the quote plausibility gates
type ValidatorConfig struct {
	MedianRates bool
}

// AlertsConfig holds alert delivery settings
type AlertsConfig struct {
	DedupWindow time.Duration `validate:"gt=0"`
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 8010),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", "30s"),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", "30s"),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", "60s"),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", "30s"),
		},
		Redis: RedisConfig{
			Addr:        getEnv("REDIS_ADDR", "localhost:6379"),
			DB:          getEnvAsInt("REDIS_DB", 0),
			Password:    getEnv("REDIS_PASSWORD", ""),
			PoolSize:    getEnvAsInt("REDIS_POOL_SIZE", 10),
			Timeout:     getEnvAsDuration("REDIS_TIMEOUT", "5s"),
			CacheNS:     getEnv("REDIS_CACHE_NAMESPACE", "quotes"),
			BlacklistNS: getEnv("REDIS_BLACKLIST_NAMESPACE", "blacklist"),
		},
		Cache: CacheConfig{
			USStockTTL:      getEnvAsDuration("CACHE_US_STOCK_TTL", "1h"),
			JPStockTTL:      getEnvAsDuration("CACHE_JP_STOCK_TTL", "1h"),
			MutualFundTTL:   getEnvAsDuration("CACHE_MUTUAL_FUND_TTL", "3h"),
			ExchangeRateTTL: getEnvAsDuration("CACHE_EXCHANGE_RATE_TTL", "6h"),
			FallbackTTL:     getEnvAsDuration("CACHE_FALLBACK_TTL", "5m"),
		},
		Blacklist: BlacklistConfig{
			StockThreshold: getEnvAsInt("BLACKLIST_STOCK_THRESHOLD", 5),
			RateThreshold:  getEnvAsInt("BLACKLIST_RATE_THRESHOLD", 10),
			StockCooldown:  getEnvAsDuration("BLACKLIST_STOCK_COOLDOWN", "6h"),
			RateCooldown:   getEnvAsDuration("BLACKLIST_RATE_COOLDOWN", "1h"),
		},
		Retry: RetryConfig{
			MaxAttempts: getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
			BaseDelay:   getEnvAsDuration("RETRY_BASE_DELAY", "300ms"),
			MaxDelay:    getEnvAsDuration("RETRY_MAX_DELAY", "5s"),
		},
		Sources: SourcesConfig{
			Yahoo: SourceConfig{
				BaseURL:   getEnv("YAHOO_BASE_URL", "https://query1.finance.yahoo.com"),
				Timeout:   getEnvAsDuration("YAHOO_TIMEOUT", "10s"),
				RateLimit: getEnvAsFloat("YAHOO_RATE_LIMIT", 5),
				Burst:     getEnvAsInt("YAHOO_BURST", 5),
			},
			Stooq: SourceConfig{
				BaseURL:   getEnv("STOOQ_BASE_URL", "https://stooq.com"),
				Timeout:   getEnvAsDuration("STOOQ_TIMEOUT", "10s"),
				RateLimit: getEnvAsFloat("STOOQ_RATE_LIMIT", 2),
				Burst:     getEnvAsInt("STOOQ_BURST", 2),
			},
			Kabutan: SourceConfig{
				BaseURL:   getEnv("KABUTAN_BASE_URL", "https://kabutan.jp"),
				Timeout:   getEnvAsDuration("KABUTAN_TIMEOUT", "10s"),
				RateLimit: getEnvAsFloat("KABUTAN_RATE_LIMIT", 1),
				Burst:     getEnvAsInt("KABUTAN_BURST", 1),
			},
			Minkabu: SourceConfig{
				BaseURL:   getEnv("MINKABU_BASE_URL", "https://minkabu.jp"),
				Timeout:   getEnvAsDuration("MINKABU_TIMEOUT", "10s"),
				RateLimit: getEnvAsFloat("MINKABU_RATE_LIMIT", 1),
				Burst:     getEnvAsInt("MINKABU_BURST", 1),
			},
			Frankfurter: SourceConfig{
				BaseURL:   getEnv("FRANKFURTER_BASE_URL", "https://api.frankfurter.app"),
				Timeout:   getEnvAsDuration("FRANKFURTER_TIMEOUT", "10s"),
				RateLimit: getEnvAsFloat("FRANKFURTER_RATE_LIMIT", 5),
				Burst:     getEnvAsInt("FRANKFURTER_BURST", 5),
			},
			ExchangeRateHost: SourceConfig{
				BaseURL:   getEnv("EXCHANGERATE_HOST_BASE_URL", "https://api.exchangerate.host"),
				Timeout:   getEnvAsDuration("EXCHANGERATE_HOST_TIMEOUT", "10s"),
				RateLimit: getEnvAsFloat("EXCHANGERATE_HOST_RATE_LIMIT", 5),
				Burst:     getEnvAsInt("EXCHANGERATE_HOST_BURST", 5),
			},
		},
		Dispatch: DispatchConfig{
			USStockWorkers:      getEnvAsInt("DISPATCH_US_STOCK_WORKERS", 8),
			JPStockWorkers:      getEnvAsInt("DISPATCH_JP_STOCK_WORKERS", 4),
			MutualFundWorkers:   getEnvAsInt("DISPATCH_MUTUAL_FUND_WORKERS", 4),
			ExchangeRateWorkers: getEnvAsInt("DISPATCH_EXCHANGE_RATE_WORKERS", 4),
			AlertFailureRate:    getEnvAsFloat("DISPATCH_ALERT_FAILURE_RATE", 0.20),
			MinBatchForAlert:    getEnvAsInt("DISPATCH_MIN_BATCH_FOR_ALERT", 10),
		},
		Scheduler: SchedulerConfig{
			Interval: getEnvAsDuration("SCHEDULER_INTERVAL", "1h"),
			Enabled:  getEnvAsBool("SCHEDULER_ENABLED", true),
		},
		Validator: ValidatorConfig{
			MedianRates: getEnvAsBool("VALIDATOR_MEDIAN_RATES", false),
		},
		Alerts: AlertsConfig{
			DedupWindow: getEnvAsDuration("ALERT_DEDUP_WINDOW", "30m"),
		},
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key, defaultValue string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
