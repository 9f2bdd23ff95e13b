package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration (tokens are issued by the identity provider)
	JWT JWTConfig

	// CORS configuration
	CORS CORSConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// Reservation engine policy
	Booking BookingConfig

	// Reconciliation sweep configuration
	Sweep SweepConfig

	// Notification sink (RabbitMQ)
	AMQP AMQPConfig

	// Redis, used for the cross-process sweep lease
	Redis RedisConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"` // development, staging, production
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`          // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string        `envconfig:"DATABASE_URL"`
	MaxConnections     int           `envconfig:"DATABASE_MAX_CONNECTIONS" default:"10"`
	MaxIdleConnections int           `envconfig:"DATABASE_MAX_IDLE_CONNECTIONS" default:"5"`
	ConnMaxLifetime    time.Duration `envconfig:"DATABASE_CONN_MAX_LIFETIME" default:"300s"`
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string        `envconfig:"JWT_SECRET"`
	Issuer            string        `envconfig:"JWT_ISSUER" default:"roomdesk-identity"`
	AccessTokenExpiry time.Duration `envconfig:"JWT_ACCESS_TOKEN_EXPIRY" default:"1h"`
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	AllowedMethods []string `envconfig:"CORS_ALLOWED_METHODS" default:"GET,POST,PUT,PATCH,DELETE,OPTIONS"`
	AllowedHeaders []string `envconfig:"CORS_ALLOWED_HEADERS" default:"Content-Type,Authorization"`
}

// RateLimitConfig holds per-client rate limiting configuration
type RateLimitConfig struct {
	Requests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"100"`
	Window   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"60s"`
}

// BookingConfig holds reservation policy knobs
type BookingConfig struct {
	MaxApprovedPerUser int           `envconfig:"BOOKING_MAX_APPROVED_PER_USER" default:"3"`
	ReminderLead       time.Duration `envconfig:"BOOKING_REMINDER_LEAD" default:"15m"`
	// StrictRoomOverlap rejects a second PENDING request for an occupied slot at creation
	// instead of letting both wait for approval
	StrictRoomOverlap bool `envconfig:"BOOKING_STRICT_ROOM_OVERLAP" default:"false"`
}

// SweepConfig holds reconciliation scheduler configuration
type SweepConfig struct {
	Schedule  string        `envconfig:"SWEEP_SCHEDULE" default:"0 * * * * *"` // second minute hour day month weekday
	BatchSize int           `envconfig:"SWEEP_BATCH_SIZE" default:"100"`
	LockTTL   time.Duration `envconfig:"SWEEP_LOCK_TTL" default:"55s"`
}

// AMQPConfig holds the notification publisher configuration
type AMQPConfig struct {
	URL      string `envconfig:"AMQP_URL"`
	Exchange string `envconfig:"AMQP_EXCHANGE" default:"reservations"`
}

// RedisConfig holds redis connection configuration
type RedisConfig struct {
	URL string `envconfig:"REDIS_URL"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{}
	if err := envconfig.Process("", config); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Booking.MaxApprovedPerUser < 1 {
		return fmt.Errorf("BOOKING_MAX_APPROVED_PER_USER must be at least 1")
	}

	if c.Booking.ReminderLead <= 0 {
		return fmt.Errorf("BOOKING_REMINDER_LEAD must be positive")
	}

	if c.Sweep.BatchSize < 1 {
		return fmt.Errorf("SWEEP_BATCH_SIZE must be at least 1")
	}

	if _, err := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor).Parse(c.Sweep.Schedule); err != nil {
		return fmt.Errorf("invalid SWEEP_SCHEDULE %q: %w", c.Sweep.Schedule, err)
	}

	if c.RateLimit.Requests < 1 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}

	return nil
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
