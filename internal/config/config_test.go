package config

import (
	"os"
	"testing"
)

var knownVars = []string{
	"APP_PORT", "DATABASE_DSN", "JWT_SECRET", "APP_ENV",
	"ACCESS_TOKEN_TTL_MINUTES", "REFRESH_TOKEN_TTL_DAYS",
	"MESSAGE_RETENTION_HOURS", "MAX_MESSAGES", "MAX_MESSAGE_LENGTH",
	"TYPING_TIMEOUT_MS", "HEARTBEAT_INTERVAL_MS", "ONLINE_THRESHOLD_MS",
	"CLEANUP_INTERVAL_MINUTES", "CLEANUP_THROTTLE_MINUTES",
	"MODERATOR_MUTE_CAP_MINUTES", "ADMIN_MUTE_CAP_MINUTES",
}

func clearEnv() {
	for _, k := range knownVars {
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv()

	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Load() Port = %v, want 8080", cfg.Port)
	}
	if cfg.Env != "dev" {
		t.Errorf("Load() Env = %v, want dev", cfg.Env)
	}
	if cfg.MessageRetentionHours != 4 {
		t.Errorf("Load() MessageRetentionHours = %v, want 4", cfg.MessageRetentionHours)
	}
	if cfg.MaxMessages != 20 {
		t.Errorf("Load() MaxMessages = %v, want 20", cfg.MaxMessages)
	}
	if cfg.MaxMessageLength != 2000 {
		t.Errorf("Load() MaxMessageLength = %v, want 2000", cfg.MaxMessageLength)
	}
	if cfg.TypingTimeoutMS != 3000 {
		t.Errorf("Load() TypingTimeoutMS = %v, want 3000", cfg.TypingTimeoutMS)
	}
	if cfg.HeartbeatIntervalMS != 30000 {
		t.Errorf("Load() HeartbeatIntervalMS = %v, want 30000", cfg.HeartbeatIntervalMS)
	}
	if cfg.OnlineThresholdMS != 30000 {
		t.Errorf("Load() OnlineThresholdMS = %v, want 30000", cfg.OnlineThresholdMS)
	}
	if cfg.CleanupIntervalMinutes != 60 {
		t.Errorf("Load() CleanupIntervalMinutes = %v, want 60", cfg.CleanupIntervalMinutes)
	}
	if cfg.CleanupThrottleMinutes != 5 {
		t.Errorf("Load() CleanupThrottleMinutes = %v, want 5", cfg.CleanupThrottleMinutes)
	}
	if cfg.ModeratorMuteCapMinutes != 1440 {
		t.Errorf("Load() ModeratorMuteCapMinutes = %v, want 1440", cfg.ModeratorMuteCapMinutes)
	}
	if cfg.AdminMuteCapMinutes != 10080 {
		t.Errorf("Load() AdminMuteCapMinutes = %v, want 10080", cfg.AdminMuteCapMinutes)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv()
	os.Setenv("APP_PORT", "9090")
	os.Setenv("MESSAGE_RETENTION_HOURS", "12")
	os.Setenv("MAX_MESSAGES", "50")
	os.Setenv("CLEANUP_INTERVAL_MINUTES", "10")
	defer clearEnv()

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("Load() Port = %v, want 9090", cfg.Port)
	}
	if cfg.MessageRetentionHours != 12 {
		t.Errorf("Load() MessageRetentionHours = %v, want 12", cfg.MessageRetentionHours)
	}
	if cfg.MaxMessages != 50 {
		t.Errorf("Load() MaxMessages = %v, want 50", cfg.MaxMessages)
	}
	// 清扫间隔是配置不是固定行为，10 与 60 都是合法取值。
	if cfg.CleanupIntervalMinutes != 10 {
		t.Errorf("Load() CleanupIntervalMinutes = %v, want 10", cfg.CleanupIntervalMinutes)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	clearEnv()
	os.Setenv("MESSAGE_RETENTION_HOURS", "invalid")
	os.Setenv("MAX_MESSAGES", "-5")
	defer clearEnv()

	cfg := Load()

	if cfg.MessageRetentionHours != 4 {
		t.Errorf("Load() MessageRetentionHours = %v, want 4 (default)", cfg.MessageRetentionHours)
	}
	if cfg.MaxMessages != 20 {
		t.Errorf("Load() MaxMessages = %v, want 20 (default)", cfg.MaxMessages)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		c := Config{
			Port:                    "8080",
			DatabaseDSN:             "postgres://localhost/test",
			JWTSecret:               "secret",
			Env:                     "dev",
			ModeratorMuteCapMinutes: 1440,
			AdminMuteCapMinutes:     10080,
		}
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid dev config", func(c *Config) {}, false},
		{"valid prod config", func(c *Config) { c.Env = "prod"; c.JWTSecret = "production-secret" }, false},
		{"empty port", func(c *Config) { c.Port = "" }, true},
		{"empty dsn", func(c *Config) { c.DatabaseDSN = "" }, true},
		{"default secret in prod", func(c *Config) { c.Env = "prod"; c.JWTSecret = "dev-secret-change-me" }, true},
		{"moderator cap above admin cap", func(c *Config) { c.ModeratorMuteCapMinutes = 20000 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			if err := Validate(cfg); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
