package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies DESKCLIENT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known DESKCLIENT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setStr(&cfg.Engine.BaseURL, "DESKCLIENT_ENGINE_BASE_URL")
	setStr(&cfg.Engine.WSURL, "DESKCLIENT_ENGINE_WS_URL")
	setStr(&cfg.Engine.Ticker, "DESKCLIENT_ENGINE_TICKER")

	// ── Token ──
	setStr(&cfg.Token.RawToken, "DESKCLIENT_TOKEN")
	setStr(&cfg.Token.EncryptedTokenPath, "DESKCLIENT_TOKEN_ENCRYPTED_PATH")
	setStr(&cfg.Token.TokenPassword, "DESKCLIENT_TOKEN_PASSWORD")

	// ── Session ──
	setInt(&cfg.Session.Depth, "DESKCLIENT_SESSION_DEPTH")
	setInt(&cfg.Session.TradeLimit, "DESKCLIENT_SESSION_TRADE_LIMIT")
	setInt(&cfg.Session.EventLimit, "DESKCLIENT_SESSION_EVENT_LIMIT")
	setInt(&cfg.Session.FillLimit, "DESKCLIENT_SESSION_FILL_LIMIT")
	setInt(&cfg.Session.HistoryLimit, "DESKCLIENT_SESSION_HISTORY_LIMIT")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "DESKCLIENT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DESKCLIENT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DESKCLIENT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "DESKCLIENT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "DESKCLIENT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "DESKCLIENT_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "DESKCLIENT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "DESKCLIENT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "DESKCLIENT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "DESKCLIENT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "DESKCLIENT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "DESKCLIENT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "DESKCLIENT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "DESKCLIENT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "DESKCLIENT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "DESKCLIENT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "DESKCLIENT_POSTGRES_RUN_MIGRATIONS")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "DESKCLIENT_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "DESKCLIENT_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "DESKCLIENT_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Endpoint, "DESKCLIENT_ARCHIVE_ENDPOINT")
	setStr(&cfg.Archive.Region, "DESKCLIENT_ARCHIVE_REGION")
	setStr(&cfg.Archive.Bucket, "DESKCLIENT_ARCHIVE_BUCKET")
	setStr(&cfg.Archive.AccessKey, "DESKCLIENT_ARCHIVE_ACCESS_KEY")
	setStr(&cfg.Archive.SecretKey, "DESKCLIENT_ARCHIVE_SECRET_KEY")
	setBool(&cfg.Archive.UseSSL, "DESKCLIENT_ARCHIVE_USE_SSL")
	setBool(&cfg.Archive.ForcePathStyle, "DESKCLIENT_ARCHIVE_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "DESKCLIENT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "DESKCLIENT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "DESKCLIENT_SERVER_CORS_ORIGINS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "DESKCLIENT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
