package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the whole application configuration, populated from
// environment variables. Missing required settings fail startup.
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Admin    AdminConfig
	Email    EmailConfig
	Palomma  PalommaConfig
	EPayco   EPaycoConfig
	Delivery DeliveryConfig
	Jobs     JobConfig
}

type AppConfig struct {
	Name        string
	Environment string // development, staging, production
	Port        string
	Version     string
	BaseURL     string // public base URL for redirect/webhook URLs
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MinConns int
}

type RedisConfig struct {
	Host     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

// AdminConfig holds the single operator login for the admin API.
type AdminConfig struct {
	Email    string
	Password string
}

// EmailConfig configures the Brevo transactional email API.
type EmailConfig struct {
	APIKey      string
	APIURL      string
	SenderName  string
	SenderEmail string
	ReplyTo     string
}

// PalommaConfig configures the Palomma checkout API.
type PalommaConfig struct {
	APIURL        string
	UserID        string
	Secret        string // shared secret, also used for webhook HMAC
	WebhookSecret string
	AccountAlias  string
	RedirectURL   string
	CheckoutTTL   time.Duration // valid_until horizon for new checkouts
}

// EPaycoConfig configures ePayco webhook verification.
type EPaycoConfig struct {
	ClientID string
	PKey     string
}

// DeliveryConfig tunes the in-process email delivery queue.
type DeliveryConfig struct {
	Interval     time.Duration
	MaxRetries   int
	MaxQueueSize int
}

// JobConfig tunes the background schedulers.
type JobConfig struct {
	WaitlistTick        time.Duration
	WaitlistMaxRetries  int
	VerifyStuckAfter    time.Duration // transactions in CREATED/PENDING older than this get verified
	VerifyBatchSize     int
	VerifyBatchPause    time.Duration
	StatusCacheTTL      time.Duration
	RateLimitWindow     time.Duration
	RateLimitMaxPerKey  int
	TokenRefreshMargin  time.Duration
	AmountFallbackHours int
}

// Load reads config from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "Licensify API"),
			Environment: getEnv("APP_ENV", "development"),
			Port:        getEnv("APP_PORT", "8080"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			BaseURL:     getEnv("APP_BASE_URL", "http://localhost:8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "licensify"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 25),
			MinConns: getEnvInt("DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		},
		Admin: AdminConfig{
			Email:    getEnv("ADMIN_EMAIL", "admin@licensify.co"),
			Password: getEnv("ADMIN_PASSWORD", ""),
		},
		Email: EmailConfig{
			APIKey:      getEnv("BREVO_API_KEY", ""),
			APIURL:      getEnv("BREVO_API_URL", "https://api.brevo.com"),
			SenderName:  getEnv("EMAIL_SENDER_NAME", "Licensify"),
			SenderEmail: getEnv("EMAIL_SENDER", "noreply@licensify.co"),
			ReplyTo:     getEnv("EMAIL_REPLY_TO", "soporte@licensify.co"),
		},
		Palomma: PalommaConfig{
			APIURL:        getEnv("PALOMMA_API_URL", "https://api.palomma.com"),
			UserID:        getEnv("PALOMMA_USER_ID", ""),
			Secret:        getEnv("PALOMMA_SECRET", ""),
			WebhookSecret: getEnv("PALOMMA_WEBHOOK_SECRET", ""),
			AccountAlias:  getEnv("PALOMMA_ACCOUNT_ALIAS", "licensify-main"),
			RedirectURL:   getEnv("PALOMMA_REDIRECT_URL", "http://localhost:3000/payment/result"),
			CheckoutTTL:   getEnvDuration("PALOMMA_CHECKOUT_TTL", 30*time.Minute),
		},
		EPayco: EPaycoConfig{
			ClientID: getEnv("EPAYCO_CLIENT_ID", ""),
			PKey:     getEnv("EPAYCO_P_KEY", ""),
		},
		Delivery: DeliveryConfig{
			Interval:     getEnvDuration("EMAIL_QUEUE_INTERVAL", 30*time.Second),
			MaxRetries:   getEnvInt("EMAIL_QUEUE_MAX_RETRIES", 3),
			MaxQueueSize: getEnvInt("EMAIL_QUEUE_MAX_SIZE", 1000),
		},
		Jobs: JobConfig{
			WaitlistTick:        getEnvDuration("WAITLIST_TICK", 30*time.Second),
			WaitlistMaxRetries:  getEnvInt("WAITLIST_MAX_RETRIES", 3),
			VerifyStuckAfter:    getEnvDuration("VERIFY_STUCK_AFTER", 30*time.Minute),
			VerifyBatchSize:     getEnvInt("VERIFY_BATCH_SIZE", 5),
			VerifyBatchPause:    getEnvDuration("VERIFY_BATCH_PAUSE", time.Second),
			StatusCacheTTL:      getEnvDuration("STATUS_CACHE_TTL", 60*time.Second),
			RateLimitWindow:     getEnvDuration("RATE_LIMIT_WINDOW", 60*time.Second),
			RateLimitMaxPerKey:  getEnvInt("RATE_LIMIT_MAX_PER_KEY", 10),
			TokenRefreshMargin:  getEnvDuration("TOKEN_REFRESH_MARGIN", 60*time.Second),
			AmountFallbackHours: getEnvInt("AMOUNT_FALLBACK_HOURS", 1),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks config consistency. Production requires real credentials;
// development tolerates missing gateway keys so the mock provider still works.
func (c *Config) Validate() error {
	if c.App.Environment == "production" {
		if c.JWT.Secret == "your-secret-key-change-in-production" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD must be set in production")
		}
		if c.Palomma.UserID == "" || c.Palomma.Secret == "" {
			return fmt.Errorf("PALOMMA_USER_ID and PALOMMA_SECRET must be set in production")
		}
		if c.Email.APIKey == "" {
			return fmt.Errorf("BREVO_API_KEY must be set in production")
		}
		if c.Admin.Password == "" {
			return fmt.Errorf("ADMIN_PASSWORD must be set in production")
		}
	}

	if c.Delivery.MaxQueueSize <= 0 {
		return fmt.Errorf("EMAIL_QUEUE_MAX_SIZE must be positive")
	}
	if c.Jobs.RateLimitMaxPerKey <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX_PER_KEY must be positive")
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
