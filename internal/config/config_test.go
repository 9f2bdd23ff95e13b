package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/roomdesk?sslmode=disable")
	t.Setenv("JWT_SECRET", "test-access-secret-key-123456789")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Environment)
	assert.Equal(t, 10, cfg.Database.MaxConnections)
	assert.Equal(t, 300*time.Second, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, time.Hour, cfg.JWT.AccessTokenExpiry)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 100, cfg.RateLimit.Requests)
	assert.Equal(t, 60*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 3, cfg.Booking.MaxApprovedPerUser)
	assert.Equal(t, 15*time.Minute, cfg.Booking.ReminderLead)
	assert.False(t, cfg.Booking.StrictRoomOverlap)
	assert.Equal(t, "0 * * * * *", cfg.Sweep.Schedule)
	assert.Equal(t, 100, cfg.Sweep.BatchSize)
	assert.Equal(t, "reservations", cfg.AMQP.Exchange)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("BOOKING_MAX_APPROVED_PER_USER", "5")
	t.Setenv("BOOKING_STRICT_ROOM_OVERLAP", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("SWEEP_SCHEDULE", "*/30 * * * * *")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 5, cfg.Booking.MaxApprovedPerUser)
	assert.True(t, cfg.Booking.StrictRoomOverlap)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, "*/30 * * * * *", cfg.Sweep.Schedule)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database:  DatabaseConfig{URL: "postgres://x"},
			JWT:       JWTConfig{Secret: "secret"},
			RateLimit: RateLimitConfig{Requests: 100, Window: time.Minute},
			Booking:   BookingConfig{MaxApprovedPerUser: 3, ReminderLead: 15 * time.Minute},
			Sweep:     SweepConfig{Schedule: "0 * * * * *", BatchSize: 100},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing database url", func(c *Config) { c.Database.URL = "" }, "DATABASE_URL"},
		{"missing jwt secret", func(c *Config) { c.JWT.Secret = "" }, "JWT_SECRET"},
		{"zero approved cap", func(c *Config) { c.Booking.MaxApprovedPerUser = 0 }, "BOOKING_MAX_APPROVED_PER_USER"},
		{"bad schedule", func(c *Config) { c.Sweep.Schedule = "every minute" }, "SWEEP_SCHEDULE"},
		{"descriptor schedule", func(c *Config) { c.Sweep.Schedule = "@every 1m" }, ""},
		{"zero batch", func(c *Config) { c.Sweep.BatchSize = 0 }, "SWEEP_BATCH_SIZE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
