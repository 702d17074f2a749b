package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Issuer    string // Issuer for provisioning URIs and JWT validation (default: HomeVault)
	JWTSecret string // Required: HMAC secret for verifying access tokens

	DatabaseFile         string        // Path to SQLite database file (default: ./twofactor.db)
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Sweep interval for sessions/lockouts/devices (default: 5m)

	SessionTTL      time.Duration // Idle lifetime of an enrollment session (default: 15m)
	SkewWindows     int           // TOTP steps accepted either side of now (default: 0)
	MaxAttempts     int           // Consecutive failures before lockout (default: 5)
	LockoutCooldown time.Duration // Lockout duration (default: 5m)

	TrustTTL               time.Duration // Device trust lifetime since last use; 0 = never expires
	RevokeDevicesOnDisable bool          // Clear the device registry when the factor is disabled
}

func LoadConfig() Config {
	return Config{
		Issuer:    getEnvOrDefault("TWOFA_ISSUER", "HomeVault"),
		JWTSecret: os.Getenv("TWOFA_JWT_SECRET"),

		DatabaseFile:         getEnvOrDefault("TWOFA_DATABASE_FILE", "twofactor.db"),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 5*time.Minute),

		SessionTTL:      getEnvDurationOrDefault("TWOFA_SESSION_TTL", 15*time.Minute),
		SkewWindows:     getEnvIntOrDefault("TWOFA_SKEW_WINDOWS", 0),
		MaxAttempts:     getEnvIntOrDefault("TWOFA_MAX_ATTEMPTS", 5),
		LockoutCooldown: getEnvDurationOrDefault("TWOFA_LOCKOUT_COOLDOWN", 5*time.Minute),

		TrustTTL:               getEnvDurationOrDefault("TWOFA_TRUST_TTL", 0),
		RevokeDevicesOnDisable: getEnvBoolOrDefault("TWOFA_REVOKE_DEVICES_ON_DISABLE", false),
	}
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
	if b, err := strconv.ParseBool(value); err == nil {
		return b
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
	// Bare integers are taken as minutes.
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}
	return defaultValue
}
