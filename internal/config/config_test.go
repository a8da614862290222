package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritwikmohanty/aegis-audit-sub000/internal/config"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := config.Defaults()
	require.NoError(t, cfg.Validate())
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantSub string
	}{
		{
			name:    "bad mode",
			mutate:  func(c *config.Config) { c.Mode = "fly" },
			wantSub: "unknown mode",
		},
		{
			name:    "bad log level",
			mutate:  func(c *config.Config) { c.LogLevel = "loud" },
			wantSub: "unknown log_level",
		},
		{
			name:    "zero initial liquidity",
			mutate:  func(c *config.Config) { c.Engine.InitialLiquidity = 0 },
			wantSub: "initial_liquidity",
		},
		{
			name:    "fee above denominator",
			mutate:  func(c *config.Config) { c.Engine.DefaultFeeRateBps = 10_001 },
			wantSub: "default_fee_rate_bps",
		},
		{
			name:    "bad owner address",
			mutate:  func(c *config.Config) { c.Engine.OwnerAddress = "not-an-address" },
			wantSub: "owner_address",
		},
		{
			name: "encrypted key without password",
			mutate: func(c *config.Config) {
				c.Operator.EncryptedKeyPath = "/keys/op.json"
			},
			wantSub: "key_password",
		},
		{
			name: "signed reports without key",
			mutate: func(c *config.Config) {
				c.Engine.RequireSignedReports = true
			},
			wantSub: "require_signed_reports",
		},
		{
			name:    "bad postgres port",
			mutate:  func(c *config.Config) { c.Postgres.Port = 0 },
			wantSub: "postgres: port",
		},
		{
			name: "archive without bucket",
			mutate: func(c *config.Config) {
				c.Archive.Enabled = true
				c.S3.Bucket = ""
			},
			wantSub: "s3: bucket",
		},
		{
			name:    "bad server port",
			mutate:  func(c *config.Config) { c.Server.Port = -1 },
			wantSub: "server: port",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Defaults()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantSub)
		})
	}
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "serve"
log_level = "debug"

[engine]
initial_liquidity = 5000
default_fee_rate_bps = 100

[server]
port = 9000
`), 0o600))

	t.Setenv("AEGIS_SERVER_PORT", "9001")
	t.Setenv("AEGIS_REDIS_ADDR", "redis.internal:6379")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, uint64(5000), cfg.Engine.InitialLiquidity)
	assert.Equal(t, uint64(100), cfg.Engine.DefaultFeeRateBps)
	// Env overrides beat the file.
	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	// Untouched defaults survive.
	assert.Equal(t, "localhost", cfg.Postgres.Host)

	require.NoError(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.Server.APIKey = "k"
	cfg.S3.SecretKey = ""

	red := config.RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Server.APIKey)
	assert.Equal(t, "", red.S3.SecretKey, "empty secrets stay empty")
	assert.Equal(t, "hunter2", cfg.Postgres.Password, "original untouched")
}
