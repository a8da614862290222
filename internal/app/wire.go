package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	s3blob "github.com/ritwikmohanty/aegis-audit-sub000/internal/blob/s3"
	"github.com/ritwikmohanty/aegis-audit-sub000/internal/cache/redis"
	"github.com/ritwikmohanty/aegis-audit-sub000/internal/config"
	aegiscrypto "github.com/ritwikmohanty/aegis-audit-sub000/internal/crypto"
	"github.com/ritwikmohanty/aegis-audit-sub000/internal/domain"
	"github.com/ritwikmohanty/aegis-audit-sub000/internal/engine"
	"github.com/ritwikmohanty/aegis-audit-sub000/internal/service"
	"github.com/ritwikmohanty/aegis-audit-sub000/internal/store/postgres"
	"github.com/ritwikmohanty/aegis-audit-sub000/internal/treasury"
)

// Dependencies bundles every constructed dependency the application modes
// need. It is built by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	MarketStore        domain.MarketStore
	PositionStore      domain.PositionStore
	SettlementLogStore domain.SettlementLogStore

	// Cache and messaging
	MarketCache domain.MarketCache
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	Archiver   domain.Archiver

	// Core
	Treasury   *treasury.Ledger
	Engine     *engine.Engine
	Settlement *service.SettlementService

	// OperatorKey is the hex-encoded operator signing key, empty when no key
	// material is configured.
	OperatorKey string

	// HealthProbes are per-dependency connectivity checks for the health
	// endpoint, keyed by dependency name.
	HealthProbes map[string]func(context.Context) error
}

// needsS3 returns true for modes that require object storage.
func needsS3(cfg *config.Config) bool {
	return cfg.Mode == "archive" || cfg.Archive.Enabled
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		HealthProbes: make(map[string]func(context.Context) error),
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.HealthProbes["postgres"] = pool.Ping
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.PositionStore = postgres.NewPositionStore(pool)
	deps.SettlementLogStore = postgres.NewSettlementLogStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.HealthProbes["redis"] = redisClient.Ping
	deps.MarketCache = redis.NewMarketCache(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 blob storage (only for modes that archive) ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.HealthProbes["s3"] = s3Client.Health
		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewSettlementArchiver(
			deps.BlobWriter,
			deps.MarketStore,
			deps.PositionStore,
			deps.SettlementLogStore,
		)
	}

	// --- Operator identity ---
	// The configured owner address wins; otherwise the owner is derived from
	// the operator signing key when one is configured.
	owner := cfg.Engine.Owner()
	if keyCfg := (aegiscrypto.KeyConfig{
		RawPrivateKey:    cfg.Operator.PrivateKey,
		EncryptedKeyPath: cfg.Operator.EncryptedKeyPath,
		KeyPassword:      cfg.Operator.KeyPassword,
	}); keyCfg.RawPrivateKey != "" || keyCfg.EncryptedKeyPath != "" {
		keyHex, err := aegiscrypto.LoadKey(keyCfg)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: operator key: %w", err)
		}
		deps.OperatorKey = keyHex

		pk, err := ethcrypto.HexToECDSA(keyHex)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: operator key: %w", err)
		}
		addr := ethcrypto.PubkeyToAddress(pk.PublicKey)
		if owner == (common.Address{}) {
			owner = addr
		}
		logger.Info("operator key loaded", "address", addr.Hex())
	}

	// --- Engine and service ---
	deps.Treasury = treasury.NewLedger()
	deps.Engine = engine.New(engine.Config{
		InitialLiquidity:  cfg.Engine.InitialLiquidity,
		DefaultFeeRateBps: cfg.Engine.DefaultFeeRateBps,
		Owner:             owner,
	}, deps.Treasury, logger)

	deps.Settlement = service.NewSettlementService(
		deps.Engine,
		deps.MarketStore,
		deps.PositionStore,
		deps.SettlementLogStore,
		deps.MarketCache,
		deps.SignalBus,
		deps.LockManager,
		cfg.Engine.RequireSignedReports,
		logger,
	)

	return deps, cleanup, nil
}
