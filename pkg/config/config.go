package config

import (
	"errors"
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

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig

	Review      ReviewConfig
	AutoApprove AutoApproveConfig
	Queue       QueueConfig
	Stats       StatsConfig
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
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ReviewConfig tunes correction submission and review rules.
type ReviewConfig struct {
	MinReasonLength int
	MaxChanges      int
}

// AutoApproveConfig governs the auto-approval rule engine.
type AutoApproveConfig struct {
	Enabled    bool
	TrustFloor int
}

// QueueConfig configures the batch apply worker pool.
type QueueConfig struct {
	Workers     int
	BufferSize  int
	MaxAttempts int
	RetryBase   time.Duration
	RetryCap    time.Duration
}

// StatsConfig governs cache behaviour for the statistics endpoints.
type StatsConfig struct {
	CacheTTL   time.Duration
	TopReasons int
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
		if !errors.As(err, &notFound) {
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
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Review = ReviewConfig{
		MinReasonLength: v.GetInt("REVIEW_MIN_REASON_LENGTH"),
		MaxChanges:      v.GetInt("REVIEW_MAX_CHANGES"),
	}

	cfg.AutoApprove = AutoApproveConfig{
		Enabled:    v.GetBool("AUTO_APPROVE_ENABLED"),
		TrustFloor: v.GetInt("AUTO_APPROVE_TRUST_FLOOR"),
	}

	cfg.Queue = QueueConfig{
		Workers:     v.GetInt("QUEUE_WORKERS"),
		BufferSize:  v.GetInt("QUEUE_BUFFER_SIZE"),
		MaxAttempts: v.GetInt("QUEUE_MAX_ATTEMPTS"),
		RetryBase:   parseDuration(v.GetString("QUEUE_RETRY_BASE"), 2*time.Second),
		RetryCap:    parseDuration(v.GetString("QUEUE_RETRY_CAP"), 2*time.Minute),
	}

	cfg.Stats = StatsConfig{
		CacheTTL:   parseDuration(v.GetString("STATS_CACHE_TTL"), 30*time.Second),
		TopReasons: v.GetInt("STATS_TOP_REASONS"),
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
	v.SetDefault("DB_NAME", "uniguide_corrections")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("REVIEW_MIN_REASON_LENGTH", 10)
	v.SetDefault("REVIEW_MAX_CHANGES", 20)

	v.SetDefault("AUTO_APPROVE_ENABLED", true)
	v.SetDefault("AUTO_APPROVE_TRUST_FLOOR", 4)

	v.SetDefault("QUEUE_WORKERS", 4)
	v.SetDefault("QUEUE_BUFFER_SIZE", 64)
	v.SetDefault("QUEUE_MAX_ATTEMPTS", 5)
	v.SetDefault("QUEUE_RETRY_BASE", "2s")
	v.SetDefault("QUEUE_RETRY_CAP", "2m")

	v.SetDefault("STATS_CACHE_TTL", "30s")
	v.SetDefault("STATS_TOP_REASONS", 10)
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
