package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseURL      string
	TelegramToken    string  // empty disables the bot
	AdminTelegramIDs []int64 // admins allowed to act on the ledger; also receive notifications
	RedisAddress     string  // empty selects in-process locking
	LockTTL          time.Duration
	WriteRetries     int
	HistoryLimit     int
	LogLevel         string
	Environment      string
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")

	cfg.AdminTelegramIDs, err = parseIDList(os.Getenv("ADMIN_TELEGRAM_IDS"))
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_IDS: %w", err)
	}
	if cfg.TelegramToken != "" && len(cfg.AdminTelegramIDs) == 0 {
		return nil, fmt.Errorf("ADMIN_TELEGRAM_IDS is not set")
	}

	cfg.RedisAddress = os.Getenv("REDIS_ADDRESS")

	cfg.LockTTL = 10 * time.Second
	if v := os.Getenv("LOCK_TTL"); v != "" {
		cfg.LockTTL, err = time.ParseDuration(v)
		if err != nil || cfg.LockTTL <= 0 {
			return nil, fmt.Errorf("invalid LOCK_TTL %q", v)
		}
	}

	cfg.WriteRetries, err = positiveInt("WRITE_RETRIES", 3)
	if err != nil {
		return nil, err
	}
	cfg.HistoryLimit, err = positiveInt("HISTORY_LIMIT", 20)
	if err != nil {
		return nil, err
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	return cfg, nil
}

func parseIDList(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func positiveInt(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, v)
	}
	return n, nil
}
