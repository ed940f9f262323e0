package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	SessionSecret string        // Required: HMAC secret for session cookies
	SessionTTL    time.Duration // Optional: session lifetime (default: 24h)
	SecureCookies bool          // Optional: mark session cookies Secure (default: true outside dev)

	KeyLength     int           // Optional: invitation code length (default: 8)
	MaxNameLength int           // Optional: display name cap in runes (default: 64)
	InviteTTL     time.Duration // Optional: invitation key lifetime (default: 5m)

	BootstrapFacilityName string // Optional: seed facility name when store is empty
	BootstrapAdminName    string // Optional: seed admin display name
	BootstrapOAuthToken   string // Optional: seed admin OAuth token
	BootstrapOAuthServer  string // Optional: seed admin OAuth server
	BootstrapFacilityID   string // Optional: fixed facility id for test rigs
	BootstrapAdminID      string // Optional: fixed admin id for test rigs

	DatabaseFile         string        // Optional: path to SQLite database file (default: ./users.db)
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	cfg := Config{
		SessionSecret: os.Getenv("USERS_SESSION_SECRET"),
		SessionTTL:    getEnvDurationOrDefault("USERS_SESSION_TTL", 24*time.Hour),

		KeyLength:     getEnvIntOrDefault("USERS_KEY_LENGTH", 8),
		MaxNameLength: getEnvIntOrDefault("USERS_MAX_NAME_LENGTH", 64),
		InviteTTL:     getEnvDurationOrDefault("USERS_INVITE_TTL", 5*time.Minute),

		BootstrapFacilityName: os.Getenv("USERS_BOOTSTRAP_FACILITY_NAME"),
		BootstrapAdminName:    os.Getenv("USERS_BOOTSTRAP_ADMIN_NAME"),
		BootstrapOAuthToken:   os.Getenv("USERS_BOOTSTRAP_OAUTH_TOKEN"),
		BootstrapOAuthServer:  os.Getenv("USERS_BOOTSTRAP_OAUTH_SERVER"),
		BootstrapFacilityID:   os.Getenv("USERS_BOOTSTRAP_FACILITY_ID"),
		BootstrapAdminID:      os.Getenv("USERS_BOOTSTRAP_ADMIN_ID"),

		DatabaseFile:         getEnvOrDefault("USERS_DATABASE_FILE", "users.db"),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	cfg.SecureCookies = cfg.Env != "dev"
	if v := os.Getenv("USERS_SECURE_COOKIES"); v != "" {
		if secure, err := strconv.ParseBool(v); err == nil {
			cfg.SecureCookies = secure
		}
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

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}
