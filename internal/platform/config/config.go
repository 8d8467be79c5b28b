package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	DatabaseURL    string
	Port           string
	IsProduction   bool
	EnableDBCheck  bool
	MigrationsPath string
	JWTSecret      string
	LogLevel       string
	RateLimit      string

	// Run execution
	PostingTimeout   time.Duration
	BalanceTolerance decimal.Decimal
	PostingCurrency  string
	RunLockTTL       time.Duration
	TriggerCron      string

	// Collaborators
	RedisAddress        string
	RedisPassword       string
	RedisDB             int
	HolidayCalendarFile string
	TaxRates            map[string]decimal.Decimal
	PosthogAPIKey       string
}

// LoadConfig loads configuration from environment variables and .env file if present.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file, ignore error if it doesn't exist
	_ = godotenv.Load()

	viper.SetDefault("PGSQL_URL", "")
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("IS_PRODUCTION", false)
	viper.SetDefault("ENABLE_DB_CHECK", false)
	viper.SetDefault("MIGRATIONS_PATH", "file://migrations")
	viper.SetDefault("JWT_SECRET", "a-very-secret-key-should-be-longer-and-random")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("RATE_LIMIT", "100-M")
	viper.SetDefault("POSTING_TIMEOUT", "30s")
	viper.SetDefault("BALANCE_TOLERANCE", "0.01")
	viper.SetDefault("POSTING_CURRENCY", "USD")
	viper.SetDefault("RUN_LOCK_TTL", "5m")
	viper.SetDefault("TRIGGER_CRON", "")
	viper.SetDefault("REDIS_ADDRESS", "")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("HOLIDAY_CALENDAR_FILE", "")
	viper.SetDefault("TAX_RATES", "")
	viper.SetDefault("POSTHOG_API_KEY", "")

	viper.AutomaticEnv()

	cfg := &Config{}

	cfg.DatabaseURL = viper.GetString("PGSQL_URL")
	if cfg.DatabaseURL == "" {
		log.Println("Warning: PGSQL_URL environment variable not set.")
	}

	cfg.Port = viper.GetString("PORT")
	if cfg.Port == "" {
		cfg.Port = "8080"
		log.Printf("Warning: PORT environment variable not set. Defaulting to %s\n", cfg.Port)
	}

	cfg.JWTSecret = viper.GetString("JWT_SECRET")
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "a-very-secret-key-should-be-longer-and-random" // !! CHANGE IN PRODUCTION !!
		log.Println("Warning: JWT_SECRET environment variable not set. Using default insecure key.")
	}

	postingTimeoutStr := viper.GetString("POSTING_TIMEOUT")
	postingTimeout, err := time.ParseDuration(postingTimeoutStr)
	if err != nil || postingTimeout <= 0 {
		postingTimeout = 30 * time.Second
		log.Printf("Warning: Invalid value for POSTING_TIMEOUT ('%s'). Defaulting to %s.\n", postingTimeoutStr, postingTimeout)
	}

	runLockTTLStr := viper.GetString("RUN_LOCK_TTL")
	runLockTTL, err := time.ParseDuration(runLockTTLStr)
	if err != nil || runLockTTL <= 0 {
		runLockTTL = 5 * time.Minute
		log.Printf("Warning: Invalid value for RUN_LOCK_TTL ('%s'). Defaulting to %s.\n", runLockTTLStr, runLockTTL)
	}
	if runLockTTL <= postingTimeout {
		return nil, fmt.Errorf("RUN_LOCK_TTL (%s) must be longer than POSTING_TIMEOUT (%s)", runLockTTL, postingTimeout)
	}

	tolerance, err := decimal.NewFromString(viper.GetString("BALANCE_TOLERANCE"))
	if err != nil || tolerance.IsNegative() {
		return nil, fmt.Errorf("invalid BALANCE_TOLERANCE '%s'", viper.GetString("BALANCE_TOLERANCE"))
	}

	taxRates, err := ParseTaxRates(viper.GetString("TAX_RATES"))
	if err != nil {
		return nil, err
	}

	cfg.IsProduction = viper.GetBool("IS_PRODUCTION")
	cfg.EnableDBCheck = viper.GetBool("ENABLE_DB_CHECK")
	cfg.MigrationsPath = viper.GetString("MIGRATIONS_PATH")
	cfg.LogLevel = viper.GetString("LOG_LEVEL")
	cfg.RateLimit = viper.GetString("RATE_LIMIT")
	cfg.PostingTimeout = postingTimeout
	cfg.BalanceTolerance = tolerance
	cfg.PostingCurrency = strings.ToUpper(viper.GetString("POSTING_CURRENCY"))
	cfg.RunLockTTL = runLockTTL
	cfg.TriggerCron = viper.GetString("TRIGGER_CRON")
	cfg.RedisAddress = viper.GetString("REDIS_ADDRESS")
	cfg.RedisPassword = viper.GetString("REDIS_PASSWORD")
	cfg.RedisDB = viper.GetInt("REDIS_DB")
	cfg.HolidayCalendarFile = viper.GetString("HOLIDAY_CALENDAR_FILE")
	cfg.TaxRates = taxRates
	cfg.PosthogAPIKey = viper.GetString("POSTHOG_API_KEY")

	return cfg, nil
}

// ParseTaxRates parses a "CODE=percent,CODE=percent" list such as "VAT20=20,GST5=5".
func ParseTaxRates(raw string) (map[string]decimal.Decimal, error) {
	rates := make(map[string]decimal.Decimal)
	if strings.TrimSpace(raw) == "" {
		return rates, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		code, percent, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || strings.TrimSpace(code) == "" {
			return nil, fmt.Errorf("invalid TAX_RATES entry '%s', expected CODE=percent", pair)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(percent))
		if err != nil || rate.IsNegative() {
			return nil, fmt.Errorf("invalid tax rate for code '%s': '%s'", code, percent)
		}
		rates[strings.ToUpper(strings.TrimSpace(code))] = rate
	}
	return rates, nil
}
