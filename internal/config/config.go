package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the watcher
type Config struct {
	// Upstream feed
	BackendURL   string
	PollInterval time.Duration
	FetchTimeout time.Duration

	// HTTP / websocket surface
	ListenAddr string

	// Redis snapshot cache (optional, empty addr disables it)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// Dismissal ledger and alert log
	DatabaseURL  string // postgres DSN, takes precedence
	DatabasePath string // sqlite fallback

	// Telegram (optional)
	TelegramToken  string
	TelegramChatID int64

	// Card lifecycle
	FlashDuration time.Duration
	GracePeriod   time.Duration
	MaxCardAge    time.Duration

	// Mode
	Debug bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		// Upstream feed
		BackendURL:   getEnv("BACKEND_URL", "http://localhost:5001"),
		PollInterval: getEnvDuration("POLL_INTERVAL", 3*time.Second),
		FetchTimeout: getEnvDuration("FETCH_TIMEOUT", 10*time.Second),

		// Surface
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),

		// Redis
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		CacheTTL:      getEnvDuration("CACHE_TTL", 10*time.Minute),

		// Storage
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabasePath: getEnv("DATABASE_PATH", "data/evwatch.db"),

		// Telegram
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		// Card lifecycle
		FlashDuration: getEnvDuration("FLASH_DURATION", 1500*time.Millisecond),
		GracePeriod:   getEnvDuration("GRACE_PERIOD", time.Minute),
		MaxCardAge:    getEnvDuration("MAX_CARD_AGE", 3*time.Minute),

		Debug: getEnvBool("DEBUG", false),
	}

	// Parse chat ID
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if cfg.GracePeriod > cfg.MaxCardAge {
		return nil, fmt.Errorf("GRACE_PERIOD must not exceed MAX_CARD_AGE")
	}

	return cfg, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
