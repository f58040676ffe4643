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

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Meetings  MeetingsConfig
	Scheduler SchedulerConfig
	Recording RecordingConfig
	Notifier  NotifierConfig
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
	Secret     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// MeetingsConfig carries platform-level fallbacks for academy meeting
// settings. Academies may override each value; these apply when an academy
// has no explicit configuration.
type MeetingsConfig struct {
	DefaultPreparationMinutes  int
	DefaultLateJoinMinutes     int
	DefaultBufferMinutes       int
	StaleGraceMinutes          int
	AutoCreateMeetings         bool
	MeetingCreationHoursBefore int
	RoomPersistTTL             time.Duration
	DedupTTL                   time.Duration
}

// SchedulerConfig controls the in-process periodic sweep.
type SchedulerConfig struct {
	Enabled      bool
	TickInterval time.Duration
}

// RecordingConfig configures the best-effort recording starter.
type RecordingConfig struct {
	Enabled bool
	BaseURL string
	Timeout time.Duration
}

// NotifierConfig tunes the finalization notification queue.
type NotifierConfig struct {
	Enabled    bool
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
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
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Meetings = MeetingsConfig{
		DefaultPreparationMinutes:  v.GetInt("MEETING_PREPARATION_MINUTES"),
		DefaultLateJoinMinutes:     v.GetInt("MEETING_LATE_JOIN_MINUTES"),
		DefaultBufferMinutes:       v.GetInt("MEETING_BUFFER_MINUTES"),
		StaleGraceMinutes:          v.GetInt("MEETING_STALE_GRACE_MINUTES"),
		AutoCreateMeetings:         v.GetBool("MEETING_AUTO_CREATE"),
		MeetingCreationHoursBefore: v.GetInt("MEETING_CREATION_HOURS_BEFORE"),
		RoomPersistTTL:             parseDuration(v.GetString("MEETING_ROOM_PERSIST_TTL"), 2*time.Minute),
		DedupTTL:                   parseDuration(v.GetString("MEETING_EVENT_DEDUP_TTL"), 10*time.Minute),
	}

	cfg.Scheduler = SchedulerConfig{
		Enabled:      v.GetBool("ENABLE_SCHEDULER"),
		TickInterval: parseDuration(v.GetString("SCHEDULER_TICK_INTERVAL"), 2*time.Minute),
	}

	cfg.Recording = RecordingConfig{
		Enabled: v.GetBool("ENABLE_RECORDING"),
		BaseURL: v.GetString("RECORDING_BASE_URL"),
		Timeout: parseDuration(v.GetString("RECORDING_TIMEOUT"), 5*time.Second),
	}

	cfg.Notifier = NotifierConfig{
		Enabled:    v.GetBool("ENABLE_NOTIFICATIONS"),
		Workers:    v.GetInt("NOTIFIER_WORKERS"),
		MaxRetries: v.GetInt("NOTIFIER_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("NOTIFIER_RETRY_DELAY"), 5*time.Second),
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
	v.SetDefault("DB_NAME", "itqan_platform")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("MEETING_PREPARATION_MINUTES", 10)
	v.SetDefault("MEETING_LATE_JOIN_MINUTES", 15)
	v.SetDefault("MEETING_BUFFER_MINUTES", 5)
	v.SetDefault("MEETING_STALE_GRACE_MINUTES", 30)
	v.SetDefault("MEETING_AUTO_CREATE", false)
	v.SetDefault("MEETING_CREATION_HOURS_BEFORE", 24)
	v.SetDefault("MEETING_ROOM_PERSIST_TTL", "2m")
	v.SetDefault("MEETING_EVENT_DEDUP_TTL", "10m")

	v.SetDefault("ENABLE_SCHEDULER", false)
	v.SetDefault("SCHEDULER_TICK_INTERVAL", "2m")

	v.SetDefault("ENABLE_RECORDING", false)
	v.SetDefault("RECORDING_BASE_URL", "http://localhost:9090")
	v.SetDefault("RECORDING_TIMEOUT", "5s")

	v.SetDefault("ENABLE_NOTIFICATIONS", false)
	v.SetDefault("NOTIFIER_WORKERS", 1)
	v.SetDefault("NOTIFIER_MAX_RETRIES", 3)
	v.SetDefault("NOTIFIER_RETRY_DELAY", "5s")
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
