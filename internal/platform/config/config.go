// Package config loads server configuration from the environment so main
// stays lean. Parsing is delegated to caarlos0/env; defaults mirror the
// development setup.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Server captures top-level server configuration.
type Server struct {
	Addr string `env:"PORTAL_ADDR" envDefault:":8080"`

	// DatabaseURL enables the Postgres-backed stores when set; the in-memory
	// stores are used otherwise (dev and tests).
	DatabaseURL string `env:"DATABASE_URL"`

	// JWTSigningKey signs session tokens. The default exists only so the
	// server boots in development; override it in any real deployment.
	JWTSigningKey string `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`

	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	// AuthCodeTTL bounds the window between code issuance and redemption.
	AuthCodeTTL time.Duration `env:"AUTH_CODE_TTL" envDefault:"60s"`

	Redis RedisConfig `envPrefix:"REDIS_"`
	Audit AuditConfig `envPrefix:"AUDIT_"`
}

// RedisConfig configures the optional Redis-backed authorization code store.
type RedisConfig struct {
	URL          string        `env:"URL"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
}

// AuditConfig configures the optional Kafka audit publisher.
type AuditConfig struct {
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	Topic   string   `env:"KAFKA_TOPIC" envDefault:"devportal.audit"`
}

// FromEnv builds a Server config from environment variables.
func FromEnv() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
