package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type ProgressConfig struct {
	JWTSecret   []byte
	DatabaseURL string
	DBMaxConns  int
	SQLitePath  string
	RedisURL    string
	CacheTTL    time.Duration

	// AsyncWrites routes PUT /progress through JetStream (202 + X-Event-ID).
	AsyncWrites bool

	RateLimitRPS   float64
	RateLimitBurst int

	WorkerBatchSize int
	WorkerMaxWait   time.Duration
}

func LoadProgress() (ProgressConfig, error) {
	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		return ProgressConfig{}, errors.New("JWT_SECRET is required")
	}
	cfg := ProgressConfig{
		JWTSecret:       []byte(secret),
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:      envInt("DB_MAX_CONNS", 10),
		SQLitePath:      strings.TrimSpace(os.Getenv("SQLITE_PATH")),
		RedisURL:        strings.TrimSpace(os.Getenv("REDIS_URL")),
		CacheTTL:        envDuration("PROGRESS_CACHE_TTL", 5*time.Minute),
		AsyncWrites:     envBool("PROGRESS_ASYNC_WRITES"),
		RateLimitRPS:    envFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:  envInt("RATE_LIMIT_BURST", 40),
		WorkerBatchSize: envInt("WORKER_BATCH_SIZE", 100),
		WorkerMaxWait:   envDuration("WORKER_BATCH_INTERVAL", 2*time.Second),
	}
	return cfg, nil
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return err == nil && v
}

func envInt(key string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
