package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type HTTPConfig struct {
	Addr string
}

// DanmuConfig holds the tuning knobs for the overlay-comment engine.
type DanmuConfig struct {
	// DefaultWindowSeconds is the window width used when a reader does not
	// supply one.
	DefaultWindowSeconds float64
	// WindowTTL bounds staleness of cached window queries.
	WindowTTL time.Duration
	// StatsTTL bounds staleness of cached per-video statistics.
	StatsTTL time.Duration
	// MaxContentLen is the maximum comment length in runes.
	MaxContentLen int
	// SubscriberBuffer is the per-subscriber event buffer size; overflow
	// drops the oldest buffered event.
	SubscriberBuffer int
	// Heartbeat is the per-room liveness signal interval.
	Heartbeat time.Duration
	// QueryTimeout bounds store-backed reads (windows, stats).
	QueryTimeout time.Duration
}

type AppConfig struct {
	ServiceName string
	LogLevel    string
	AppEnv      string
	HTTP        HTTPConfig
	DatabaseURL string
	RedisDSN    string
	NATSURL     string
	JWTSecret   string
	Danmu       DanmuConfig
}

// IsProduction reports whether the service runs with production guarantees
// (no in-memory fallbacks for stores or caches).
func (c AppConfig) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; missing files are not an error.
func Load() (AppConfig, error) {
	_ = godotenv.Load()

	cfg := AppConfig{
		ServiceName: getenv("SERVICE_NAME"),
		LogLevel:    getenv("LOG_LEVEL"),
		AppEnv:      getenv("APP_ENV"),
		HTTP: HTTPConfig{
			Addr: getenv("HTTP_ADDR"),
		},
		DatabaseURL: getenv("DATABASE_URL"),
		RedisDSN:    getenv("REDIS_DSN"),
		NATSURL:     getenv("NATS_URL"),
		JWTSecret:   getenv("JWT_SECRET"),
		Danmu: DanmuConfig{
			DefaultWindowSeconds: envFloat("DANMU_WINDOW_SECONDS", 10),
			WindowTTL:            envDuration("DANMU_WINDOW_TTL", 30*time.Second),
			StatsTTL:             envDuration("DANMU_STATS_TTL", 60*time.Second),
			MaxContentLen:        envInt("DANMU_MAX_CONTENT_LEN", 200),
			SubscriberBuffer:     envInt("DANMU_SUBSCRIBER_BUFFER", 32),
			Heartbeat:            envDuration("DANMU_HEARTBEAT", 15*time.Second),
			QueryTimeout:         envDuration("DANMU_QUERY_TIMEOUT", 3*time.Second),
		},
	}
	if cfg.ServiceName == "" {
		return AppConfig{}, errors.New("SERVICE_NAME is required")
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.IsProduction() && cfg.JWTSecret == "" {
		return AppConfig{}, errors.New("JWT_SECRET is required in production")
	}
	return cfg, nil
}

func getenv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envInt(key string, fallback int) int {
	v := getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
