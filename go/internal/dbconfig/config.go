package dbconfig

import (
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/arenanotify/go/internal/config"
)

// Config holds Postgres connection settings for the registration store.
type Config struct {
	Host           string
	Port           int
	User           string
	Password       string
	Database       string
	SSLMode        string
	MaxConns       int32
	ConnectTimeout time.Duration
}

// NewConfigFromEnv reads DB_* environment variables (with defaults).
func NewConfigFromEnv() Config {
	return Config{
		Host:           config.GetEnv("DB_HOST", "localhost"),
		Port:           config.GetEnvAsInt("DB_PORT", 5432),
		User:           config.GetEnv("DB_USER", "postgres"),
		Password:       config.GetEnv("DB_PASSWORD", "postgres"),
		Database:       config.GetEnv("DB_NAME", "arenanotify"),
		SSLMode:        config.GetEnv("DB_SSLMODE", "disable"),
		MaxConns:       int32(config.GetEnvAsInt("DB_MAX_CONNS", 8)),
		ConnectTimeout: config.GetEnvAsDuration("DB_CONNECT_TIMEOUT", 5*time.Second),
	}
}

// DSN returns the Postgres connection URL. It is shared by the pgx pool and
// the lib/pq LISTEN connection.
func (c Config) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	q := u.Query()
	q.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		q.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// PoolConfig builds a pgxpool configuration from c.
func (c Config) PoolConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	if c.MaxConns > 0 {
		pc.MaxConns = c.MaxConns
	}
	return pc, nil
}
