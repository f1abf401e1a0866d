package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the server needs from its environment.
type Config struct {
	Addr            string
	PostgresURL     string
	Redis           RedisConfig
	KafkaBrokers    []string
	JWTSigningKey   string
	ShutdownTimeout time.Duration
}

// RedisConfig holds connection settings for the presence bridge.
// An empty URL disables Redis entirely (single-instance deployments).
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	addr := os.Getenv("VIGIL_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("VIGIL_JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	var brokers []string
	if raw := os.Getenv("VIGIL_KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	return Config{
		Addr:            addr,
		PostgresURL:     os.Getenv("VIGIL_POSTGRES_URL"),
		Redis:           redisFromEnv(),
		KafkaBrokers:    brokers,
		JWTSigningKey:   jwtSigningKey,
		ShutdownTimeout: durationEnv("VIGIL_SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func redisFromEnv() RedisConfig {
	return RedisConfig{
		URL:          os.Getenv("VIGIL_REDIS_URL"),
		PoolSize:     intEnv("VIGIL_REDIS_POOL_SIZE", 10),
		MinIdleConns: intEnv("VIGIL_REDIS_MIN_IDLE_CONNS", 2),
		DialTimeout:  durationEnv("VIGIL_REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  durationEnv("VIGIL_REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: durationEnv("VIGIL_REDIS_WRITE_TIMEOUT", 3*time.Second),
	}
}

func intEnv(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if v, err := time.ParseDuration(raw); err == nil {
			return v
		}
	}
	return fallback
}
