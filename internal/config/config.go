package config

import (
	"errors"
	"os"
	"strconv"
)

// Config 汇总服务全部可调参数，均可由环境变量覆盖。
type Config struct {
	Port        string
	DatabaseDSN string
	JWTSecret   string
	Env         string

	AccessTokenTTLMinutes int
	RefreshTokenTTLDays   int

	// 消息与留存
	MessageRetentionHours int
	MaxMessages           int
	MaxMessageLength      int

	// 在线与打字
	TypingTimeoutMS     int
	HeartbeatIntervalMS int
	OnlineThresholdMS   int

	// 周期清扫
	CleanupIntervalMinutes int
	CleanupThrottleMinutes int

	// 禁言时长上限（分钟），按签发者角色区分
	ModeratorMuteCapMinutes int
	AdminMuteCapMinutes     int
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getint(key string, def int) int {
	v, err := strconv.Atoi(getenv(key, strconv.Itoa(def)))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func Load() Config {
	return Config{
		Port:                  getenv("APP_PORT", "8080"),
		DatabaseDSN:           getenv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=hackconvo port=5432 sslmode=disable TimeZone=UTC"),
		JWTSecret:             getenv("JWT_SECRET", "dev-secret-change-me"),
		Env:                   getenv("APP_ENV", "dev"),
		AccessTokenTTLMinutes: getint("ACCESS_TOKEN_TTL_MINUTES", 15),
		RefreshTokenTTLDays:   getint("REFRESH_TOKEN_TTL_DAYS", 7),

		MessageRetentionHours: getint("MESSAGE_RETENTION_HOURS", 4),
		MaxMessages:           getint("MAX_MESSAGES", 20),
		MaxMessageLength:      getint("MAX_MESSAGE_LENGTH", 2000),

		TypingTimeoutMS:     getint("TYPING_TIMEOUT_MS", 3000),
		HeartbeatIntervalMS: getint("HEARTBEAT_INTERVAL_MS", 30000),
		OnlineThresholdMS:   getint("ONLINE_THRESHOLD_MS", 30000),

		CleanupIntervalMinutes: getint("CLEANUP_INTERVAL_MINUTES", 60),
		CleanupThrottleMinutes: getint("CLEANUP_THROTTLE_MINUTES", 5),

		ModeratorMuteCapMinutes: getint("MODERATOR_MUTE_CAP_MINUTES", 1440),
		AdminMuteCapMinutes:     getint("ADMIN_MUTE_CAP_MINUTES", 10080),
	}
}

// Validate 启动前的基本校验，生产环境拒绝默认密钥。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("port is required")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("database dsn is required")
	}
	if cfg.Env != "dev" && cfg.JWTSecret == "dev-secret-change-me" {
		return errors.New("default jwt secret not allowed outside dev")
	}
	if cfg.ModeratorMuteCapMinutes > cfg.AdminMuteCapMinutes {
		return errors.New("moderator mute cap exceeds admin cap")
	}
	return nil
}
