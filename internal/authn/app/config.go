package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Issuer string // Issuer claim for access tokens

	SigningKeyFile string        // Optional: path to a PKCS8 Ed25519 key; ephemeral key when empty
	AccessTTL      time.Duration // Access token lifetime (default: 15m)
	RefreshTTL     time.Duration // Refresh token lifetime (default: 720h)
	ClockLeeway    time.Duration // Verification clock skew allowance (default: 30s)

	EmailThreshold  int           // Failed attempts per email before lockout (default: 5)
	IPThreshold     int           // Failed attempts per IP before lockout (default: 10)
	LockoutWindow   time.Duration // Trailing window for failure counting (default: 15m)
	DelayCap        time.Duration // Progressive delay ceiling (default: 30s)
	MinResponseTime time.Duration // Login response time floor (default: 100ms)

	ResetTokenTTL   time.Duration // Password reset token lifetime (default: 1h)
	ReuseRevokesAll bool          // Revoke the whole session family on refresh reuse (default: true)

	BootstrapEmail    string // Optional: seed principal email on an empty store
	BootstrapPassword string // Optional: seed principal password

	DatabaseFile         string        // Path to SQLite database file (default: ./doorman.db)
	PepperFile           string        // Path to the password pepper file (default: ./pepper)
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
	TokenGrace           time.Duration // How long expired refresh tokens are kept (default: 24h)
	AttemptRetention     time.Duration // How long login attempt rows are kept (default: 720h)
}

func LoadConfig() Config {
	cfg := Config{
		Issuer:         getEnvOrDefault("DOORMAN_ISSUER", "doorman"),
		SigningKeyFile: os.Getenv("DOORMAN_SIGNING_KEY_FILE"),
		AccessTTL:      getEnvDurationOrDefault("DOORMAN_ACCESS_TTL", 15*time.Minute),
		RefreshTTL:     getEnvDurationOrDefault("DOORMAN_REFRESH_TTL", 30*24*time.Hour),
		ClockLeeway:    getEnvDurationOrDefault("DOORMAN_CLOCK_LEEWAY", 30*time.Second),

		EmailThreshold:  getEnvIntOrDefault("DOORMAN_EMAIL_THRESHOLD", 5),
		IPThreshold:     getEnvIntOrDefault("DOORMAN_IP_THRESHOLD", 10),
		LockoutWindow:   getEnvDurationOrDefault("DOORMAN_LOCKOUT_WINDOW", 15*time.Minute),
		DelayCap:        getEnvDurationOrDefault("DOORMAN_DELAY_CAP", 30*time.Second),
		MinResponseTime: getEnvDurationOrDefault("DOORMAN_MIN_RESPONSE_TIME", 100*time.Millisecond),

		ResetTokenTTL:   getEnvDurationOrDefault("DOORMAN_RESET_TOKEN_TTL", time.Hour),
		ReuseRevokesAll: getEnvBoolOrDefault("DOORMAN_REUSE_REVOKES_ALL", true),

		BootstrapEmail:    os.Getenv("DOORMAN_BOOTSTRAP_EMAIL"),
		BootstrapPassword: os.Getenv("DOORMAN_BOOTSTRAP_PASSWORD"),

		DatabaseFile:         getEnvOrDefault("DOORMAN_DATABASE_FILE", "doorman.db"),
		PepperFile:           getEnvOrDefault("DOORMAN_PEPPER_FILE", "pepper"),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
		TokenGrace:           getEnvDurationOrDefault("DOORMAN_TOKEN_GRACE", 24*time.Hour),
		AttemptRetention:     getEnvDurationOrDefault("DOORMAN_ATTEMPT_RETENTION", 30*24*time.Hour),
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Accept Go duration syntax ("1h", "30m", "90s").
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Accept plain integer seconds.
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
