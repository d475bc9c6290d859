// Package config builds runtime configuration from the environment so main
// stays lean. Every knob has a development-safe default; production
// deployments override via REGISTRA_* variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server       Server
	Postgres     Postgres
	Redis        Redis
	Kafka        Kafka
	Audit        Audit
	Verification Verification
	Auth         Auth
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Postgres holds the primary store connection. An empty DSN selects the
// in-memory stores.
type Postgres struct {
	DSN string
}

// Redis holds the trust-cache connection. An empty URL disables caching.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka holds the audit stream fan-out. No brokers disables the mirror.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Audit holds the compliance knobs.
type Audit struct {
	// PseudonymKey keys the HMAC applied to user-identifying fields.
	PseudonymKey string
	// Retention is how long audit events and pseudonym mappings are kept.
	Retention time.Duration
	// SweepInterval is how often the retention purge runs.
	SweepInterval time.Duration
}

// Verification holds the domain-proof policy.
type Verification struct {
	AttemptCeiling int
	ChallengeTTL   time.Duration
	ReverifyAfter  time.Duration
	SweepInterval  time.Duration
}

// Auth configures the API token check.
type Auth struct {
	JWTSigningKey string
}

func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:            envStr("REGISTRA_ADDR", ":8080"),
			ShutdownTimeout: envDuration("REGISTRA_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Postgres: Postgres{
			DSN: os.Getenv("REGISTRA_POSTGRES_DSN"),
		},
		Redis: Redis{
			URL:          os.Getenv("REGISTRA_REDIS_URL"),
			PoolSize:     envInt("REGISTRA_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REGISTRA_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("REGISTRA_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REGISTRA_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REGISTRA_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers: envList("REGISTRA_KAFKA_BROKERS"),
			Topic:   envStr("REGISTRA_KAFKA_AUDIT_TOPIC", "registra.audit.events"),
		},
		Audit: Audit{
			PseudonymKey:  envStr("REGISTRA_PSEUDONYM_KEY", "dev-pseudonym-key-change-in-production"),
			Retention:     envDuration("REGISTRA_AUDIT_RETENTION", 90*24*time.Hour),
			SweepInterval: envDuration("REGISTRA_AUDIT_SWEEP_INTERVAL", time.Hour),
		},
		Verification: Verification{
			AttemptCeiling: envInt("REGISTRA_CHALLENGE_ATTEMPTS", 5),
			ChallengeTTL:   envDuration("REGISTRA_CHALLENGE_TTL", 72*time.Hour),
			ReverifyAfter:  envDuration("REGISTRA_REVERIFY_AFTER", 90*24*time.Hour),
			SweepInterval:  envDuration("REGISTRA_CHALLENGE_SWEEP_INTERVAL", 15*time.Minute),
		},
		Auth: Auth{
			JWTSigningKey: envStr("REGISTRA_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
