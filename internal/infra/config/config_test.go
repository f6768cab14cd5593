package config

import (
	"testing"
	"time"
)

func setEnv(t *testing.T, env map[string]string) {
	t.Helper()
	for _, k := range []string{"DATABASE_URL", "TELEGRAM_TOKEN", "ADMIN_TELEGRAM_IDS", "REDIS_ADDRESS", "LOCK_TTL", "WRITE_RETRIES", "HISTORY_LIMIT", "LOG_LEVEL", "ENVIRONMENT"} {
		t.Setenv(k, "")
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, map[string]string{"DATABASE_URL": "postgres://localhost/ledger"})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LockTTL != 10*time.Second || cfg.WriteRetries != 3 || cfg.HistoryLimit != 20 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.LogLevel != "info" || cfg.Environment != "development" {
		t.Fatalf("unexpected log defaults %q/%q", cfg.LogLevel, cfg.Environment)
	}
	if cfg.TelegramToken != "" || cfg.RedisAddress != "" || len(cfg.AdminTelegramIDs) != 0 {
		t.Fatalf("optional values should be empty: %+v", cfg)
	}
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, map[string]string{
		"DATABASE_URL":       "postgres://localhost/ledger",
		"TELEGRAM_TOKEN":     "token",
		"ADMIN_TELEGRAM_IDS": " 11, 22 ,",
		"REDIS_ADDRESS":      "localhost:6379",
		"LOCK_TTL":           "3s",
		"WRITE_RETRIES":      "7",
		"HISTORY_LIMIT":      "50",
		"LOG_LEVEL":          "DEBUG",
		"ENVIRONMENT":        "Production",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.AdminTelegramIDs) != 2 || cfg.AdminTelegramIDs[0] != 11 || cfg.AdminTelegramIDs[1] != 22 {
		t.Fatalf("unexpected admin IDs %v", cfg.AdminTelegramIDs)
	}
	if cfg.LockTTL != 3*time.Second || cfg.WriteRetries != 7 || cfg.HistoryLimit != 50 {
		t.Fatalf("unexpected overrides %+v", cfg)
	}
	if cfg.LogLevel != "debug" || cfg.Environment != "production" {
		t.Fatalf("expected lower-cased log settings, got %q/%q", cfg.LogLevel, cfg.Environment)
	}
}

func TestLoad_Errors(t *testing.T) {
	base := map[string]string{"DATABASE_URL": "postgres://localhost/ledger"}
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing database", env: map[string]string{}},
		{name: "token without admins", env: map[string]string{"TELEGRAM_TOKEN": "t"}},
		{name: "bad admin id", env: map[string]string{"ADMIN_TELEGRAM_IDS": "12,abc"}},
		{name: "bad ttl", env: map[string]string{"LOCK_TTL": "soon"}},
		{name: "zero retries", env: map[string]string{"WRITE_RETRIES": "0"}},
		{name: "bad history limit", env: map[string]string{"HISTORY_LIMIT": "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := map[string]string{}
			if tt.name != "missing database" {
				for k, v := range base {
					env[k] = v
				}
			}
			for k, v := range tt.env {
				env[k] = v
			}
			setEnv(t, env)
			if _, err := Load(); err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}
