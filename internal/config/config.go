package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment  string
	LogLevel     string
	Port         int
	DBPath       string
	CookieDomain string
	CookieMaxAge time.Duration
	TokenFile    string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment:  getEnv("ENVIRONMENT", "development"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		Port:         getEnvAsInt("PACAN_PORT", 8080),
		DBPath:       getEnv("PACAN_DB_PATH", "./pacan.db"),
		CookieDomain: getEnv("PACAN_COOKIE_DOMAIN", ""),
		CookieMaxAge: getEnvAsDuration("PACAN_COOKIE_MAX_AGE", 2*365*24*time.Hour),
		TokenFile:    getEnv("PACAN_TOKEN_FILE", ".pacan-token"),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
