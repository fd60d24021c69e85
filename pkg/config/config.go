package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	Cache      CacheConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Attendance AttendanceConfig
	CheckIn    CheckInConfig
	Bulk       BulkAdvanceConfig
	Audit      AuditConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// CacheConfig governs read-through caching of application projections.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AttendanceConfig bounds the rotating code sessions.
type AttendanceConfig struct {
	MinRefreshSeconds int
	MaxRefreshSeconds int
	CodeLength        int
}

// CheckInConfig limits how often one student may submit codes.
type CheckInConfig struct {
	RateLimit  int
	RateWindow time.Duration
}

// BulkAdvanceConfig tunes the batch coordinator.
type BulkAdvanceConfig struct {
	RequireAttendance bool
	Concurrency       int
}

// AuditConfig sizes the asynchronous audit writer.
type AuditConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_CACHE"),
		TTL:     parseDuration(v.GetString("PROJECTION_CACHE_TTL"), 2*time.Minute),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Attendance = AttendanceConfig{
		MinRefreshSeconds: v.GetInt("ATTENDANCE_MIN_REFRESH_SECONDS"),
		MaxRefreshSeconds: v.GetInt("ATTENDANCE_MAX_REFRESH_SECONDS"),
		CodeLength:        v.GetInt("ATTENDANCE_CODE_LENGTH"),
	}
	if cfg.Attendance.MinRefreshSeconds <= 0 {
		cfg.Attendance.MinRefreshSeconds = 30
	}
	if cfg.Attendance.MaxRefreshSeconds < cfg.Attendance.MinRefreshSeconds {
		cfg.Attendance.MaxRefreshSeconds = cfg.Attendance.MinRefreshSeconds
	}

	cfg.CheckIn = CheckInConfig{
		RateLimit:  v.GetInt("CHECKIN_RATE_LIMIT"),
		RateWindow: parseDuration(v.GetString("CHECKIN_RATE_WINDOW"), time.Minute),
	}

	cfg.Bulk = BulkAdvanceConfig{
		RequireAttendance: v.GetBool("BULK_ADVANCE_REQUIRE_ATTENDANCE"),
		Concurrency:       v.GetInt("BULK_ADVANCE_CONCURRENCY"),
	}

	cfg.Audit = AuditConfig{
		Workers:    v.GetInt("AUDIT_WORKERS"),
		BufferSize: v.GetInt("AUDIT_BUFFER"),
		MaxRetries: v.GetInt("AUDIT_MAX_RETRIES"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "placement_cell")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", false)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ENABLE_CACHE", false)
	v.SetDefault("PROJECTION_CACHE_TTL", "2m")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ATTENDANCE_MIN_REFRESH_SECONDS", 30)
	v.SetDefault("ATTENDANCE_MAX_REFRESH_SECONDS", 90)
	v.SetDefault("ATTENDANCE_CODE_LENGTH", 6)

	v.SetDefault("CHECKIN_RATE_LIMIT", 10)
	v.SetDefault("CHECKIN_RATE_WINDOW", "1m")

	v.SetDefault("BULK_ADVANCE_REQUIRE_ATTENDANCE", false)
	v.SetDefault("BULK_ADVANCE_CONCURRENCY", 4)

	v.SetDefault("AUDIT_WORKERS", 1)
	v.SetDefault("AUDIT_BUFFER", 256)
	v.SetDefault("AUDIT_MAX_RETRIES", 3)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
