// Package config loads service configuration from the environment.
package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the server.
type Config struct {
	// HTTP
	ListenAddr string

	// Database
	DatabaseURL string

	// Redis (optional, empty disables the profile cache)
	RedisAddr     string
	RedisPassword string

	// Auth
	JWTSecret string

	// Logging
	LogLevel string
	LogFile  string

	Environment string
}

// Load reads configuration from the environment, loading .env first if present.
func Load() *Config {
	// .env is optional; missing file is not an error
	_ = godotenv.Load()

	return &Config{
		ListenAddr:    getEnvOrDefault("LISTEN_ADDR", ":8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		JWTSecret:     getEnvOrDefault("JWT_SECRET", "dev-secret-do-not-use-in-production"),
		LogLevel:      getEnvOrDefault("LOG_LEVEL", "info"),
		LogFile:       getEnvOrDefault("LOG_FILE", "server.log"),
		Environment:   getEnvOrDefault("ENVIRONMENT", "development"),
	}
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnvOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
