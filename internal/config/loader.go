package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies AEGIS_* environment variable overrides, and
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

// applyEnvOverrides reads well-known AEGIS_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setUint64(&cfg.Engine.InitialLiquidity, "AEGIS_ENGINE_INITIAL_LIQUIDITY")
	setUint64(&cfg.Engine.DefaultFeeRateBps, "AEGIS_ENGINE_DEFAULT_FEE_RATE_BPS")
	setStr(&cfg.Engine.OwnerAddress, "AEGIS_ENGINE_OWNER_ADDRESS")
	setBool(&cfg.Engine.RequireSignedReports, "AEGIS_ENGINE_REQUIRE_SIGNED_REPORTS")

	// ── Operator ──
	setStr(&cfg.Operator.PrivateKey, "AEGIS_OPERATOR_PRIVATE_KEY")
	setStr(&cfg.Operator.EncryptedKeyPath, "AEGIS_OPERATOR_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Operator.KeyPassword, "AEGIS_OPERATOR_KEY_PASSWORD")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "AEGIS_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "AEGIS_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "AEGIS_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "AEGIS_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "AEGIS_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "AEGIS_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "AEGIS_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "AEGIS_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "AEGIS_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "AEGIS_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "AEGIS_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "AEGIS_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "AEGIS_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "AEGIS_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "AEGIS_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "AEGIS_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "AEGIS_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "AEGIS_S3_REGION")
	setStr(&cfg.S3.Bucket, "AEGIS_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "AEGIS_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "AEGIS_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "AEGIS_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "AEGIS_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "AEGIS_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "AEGIS_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "AEGIS_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "AEGIS_SERVER_CORS_ORIGINS")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "AEGIS_ARCHIVE_ENABLED")

	// ── Top-level ──
	setStr(&cfg.Mode, "AEGIS_MODE")
	setStr(&cfg.LogLevel, "AEGIS_LOG_LEVEL")
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

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
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
