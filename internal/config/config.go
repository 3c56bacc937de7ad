// Package config defines the top-level configuration for the desk client
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by DESKCLIENT_* environment variables.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Token    TokenConfig    `toml:"token"`
	Session  SessionConfig  `toml:"session"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	LogLevel string         `toml:"log_level"`
}

// EngineConfig holds the matching-engine endpoints and the instrument to
// subscribe to.
type EngineConfig struct {
	// BaseURL is the HTTP origin of the engine REST API, e.g.
	// "http://localhost:8080".
	BaseURL string `toml:"base_url"`
	// WSURL is the WebSocket origin of the engine feeds, e.g.
	// "ws://localhost:8080". The public and private feed paths are appended
	// to it.
	WSURL  string `toml:"ws_url"`
	Ticker string `toml:"ticker"`
}

// TokenConfig holds the bearer-token sources. RawToken wins when set;
// otherwise the encrypted token file is decrypted with TokenPassword. Both
// empty means the session starts unauthenticated.
type TokenConfig struct {
	RawToken           string `toml:"raw_token"`
	EncryptedTokenPath string `toml:"encrypted_token_path"`
	TokenPassword      string `toml:"token_password"`
}

// SessionConfig bounds the in-memory session state. Zero values fall back to
// the session controller's defaults.
type SessionConfig struct {
	Depth        int `toml:"depth"`
	TradeLimit   int `toml:"trade_limit"`
	EventLimit   int `toml:"event_limit"`
	FillLimit    int `toml:"fill_limit"`
	HistoryLimit int `toml:"history_limit"`
}

// RedisConfig holds Redis connection parameters. An empty Addr disables the
// signal bus and the book mirror.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds PostgreSQL connection parameters for the session
// recorder.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// ArchiveConfig holds the S3 session-archiver parameters. Archiving reads
// from the session recorder, so it requires Postgres to be enabled.
type ArchiveConfig struct {
	Enabled        bool     `toml:"enabled"`
	Interval       duration `toml:"interval"`
	RetentionDays  int      `toml:"retention_days"`
	Endpoint       string   `toml:"endpoint"`
	Region         string   `toml:"region"`
	Bucket         string   `toml:"bucket"`
	AccessKey      string   `toml:"access_key"`
	SecretKey      string   `toml:"secret_key"`
	UseSSL         bool     `toml:"use_ssl"`
	ForcePathStyle bool     `toml:"force_path_style"`
}

// ServerConfig holds the dashboard HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			BaseURL: "http://localhost:8080",
			WSURL:   "ws://localhost:8080",
			Ticker:  "TEST",
		},
		Session: SessionConfig{
			Depth:        50,
			TradeLimit:   500,
			EventLimit:   500,
			FillLimit:    200,
			HistoryLimit: 2000,
		},
		Redis: RedisConfig{
			Addr:       "",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "deskclient",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Archive: ArchiveConfig{
			Enabled:        false,
			Interval:       duration{15 * time.Minute},
			RetentionDays:  90,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "deskclient-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine endpoints
	if c.Engine.BaseURL == "" {
		errs = append(errs, "engine: base_url must not be empty")
	}
	if c.Engine.WSURL == "" {
		errs = append(errs, "engine: ws_url must not be empty")
	}
	if strings.TrimSpace(c.Engine.Ticker) == "" {
		errs = append(errs, "engine: ticker must not be empty")
	}

	// Token
	if c.Token.EncryptedTokenPath != "" && c.Token.TokenPassword == "" {
		errs = append(errs, "token: token_password is required when encrypted_token_path is set")
	}

	// Session bounds
	if c.Session.Depth < 0 || c.Session.TradeLimit < 0 || c.Session.EventLimit < 0 ||
		c.Session.FillLimit < 0 || c.Session.HistoryLimit < 0 {
		errs = append(errs, "session: limits must not be negative")
	}

	// Redis — optional; only checked when an address is configured.
	if c.Redis.Addr != "" && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Archive
	if c.Archive.Enabled {
		if !c.Postgres.Enabled {
			errs = append(errs, "archive: requires postgres to be enabled")
		}
		if c.Archive.Endpoint == "" {
			errs = append(errs, "archive: endpoint must not be empty")
		}
		if c.Archive.Bucket == "" {
			errs = append(errs, "archive: bucket must not be empty")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
