package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/etherindex/basketd/internal/blob/s3"
	"github.com/etherindex/basketd/internal/cache/redis"
	"github.com/etherindex/basketd/internal/config"
	"github.com/etherindex/basketd/internal/crypto"
	"github.com/etherindex/basketd/internal/domain"
	"github.com/etherindex/basketd/internal/oracle"
	"github.com/etherindex/basketd/internal/oracle/pyth"
	"github.com/etherindex/basketd/internal/platform/evm"
	"github.com/etherindex/basketd/internal/registry"
	"github.com/etherindex/basketd/internal/router/sim"
	"github.com/etherindex/basketd/internal/service"
	"github.com/etherindex/basketd/internal/store/postgres"
)

// quoteCacheTTL bounds how long a cached oracle quote may serve as a stale
// fallback.
const quoteCacheTTL = 10 * time.Minute

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores (nil when Postgres is not wired for the mode).
	FundStore  domain.FundStore
	AuditStore domain.AuditStore

	// Caches (nil when Redis is disabled).
	QuoteCache  domain.QuoteCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage (nil unless snapshots are enabled).
	BlobWriter domain.BlobWriter

	// Execution ports.
	Oracle   domain.PriceOracle
	Router   domain.SwapRouter
	Utility  domain.UtilityToken
	Payments domain.BaseTransfer

	// SimBank is non-nil only in server mode, where the in-process ledger
	// backs the utility token and base payouts.
	SimBank *sim.Bank

	// Core.
	Registry *registry.Registry
	FundSvc  *service.FundService
}

// needsPostgres returns true for modes that index funds and audit events.
func needsPostgres(mode string) bool {
	switch mode {
	case "server", "engine", "full":
		return true
	default:
		return false
	}
}

// needsS3 returns true for modes that archive NAV snapshots.
func needsS3(cfg *config.Config) bool {
	return cfg.Mode == "snapshot" || cfg.Snapshot.Enabled
}

// onChain returns true for modes that execute swaps against real contracts.
func onChain(mode string) bool {
	return mode == "engine" || mode == "full"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (only for modes that need persistence) ---
	if needsPostgres(cfg.Mode) {
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

		// Run migrations if enabled.
		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.FundStore = postgres.NewFundStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
	}

	// --- Redis (optional everywhere; enables locks, event bus, quote cache) ---
	if cfg.Redis.Enabled {
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

		deps.QuoteCache = redis.NewQuoteCache(redisClient, quoteCacheTTL)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- S3 blob storage (only when NAV snapshots are archived) ---
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

		deps.BlobWriter = s3blob.NewWriter(s3Client)
	}

	// --- Price oracle ---
	if err := wireOracle(ctx, cfg, deps, logger); err != nil {
		cleanup()
		return nil, nil, err
	}

	// --- Swap execution backend ---
	if onChain(cfg.Mode) {
		closeChain, err := wireChain(ctx, cfg, deps)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, closeChain)
	} else {
		if err := wireSim(cfg, deps); err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	// --- Registry and fund service ---
	if err := wireCore(cfg, deps, logger); err != nil {
		cleanup()
		return nil, nil, err
	}

	return deps, cleanup, nil
}

// wireOracle builds the Hermes-backed oracle, registers the configured feeds,
// and layers the Redis quote cache on top when available.
func wireOracle(ctx context.Context, cfg *config.Config, deps *Dependencies, logger *slog.Logger) error {
	source := pyth.New(cfg.Oracle.HermesURL)
	core := oracle.New(source, cfg.Oracle.MaxAge.Duration)

	if cfg.Oracle.BaseFeed != "" {
		feedID := common.HexToHash(cfg.Oracle.BaseFeed)
		if err := core.SetPriceFeed(ctx, domain.BaseAsset, feedID); err != nil {
			return fmt.Errorf("wire: oracle base feed: %w", err)
		}
	}
	for assetHex, feedHex := range cfg.Oracle.Feeds {
		if !common.IsHexAddress(assetHex) {
			return fmt.Errorf("wire: oracle: invalid asset address %q", assetHex)
		}
		asset := common.HexToAddress(assetHex)
		if err := core.SetPriceFeed(ctx, asset, common.HexToHash(feedHex)); err != nil {
			return fmt.Errorf("wire: oracle feed for %s: %w", assetHex, err)
		}
	}

	if deps.QuoteCache != nil {
		deps.Oracle = oracle.WithCache(core, deps.QuoteCache, logger)
	} else {
		deps.Oracle = core
	}
	return nil
}

// wireChain dials the RPC endpoint and binds the on-chain router, utility
// token, and native payout port. The returned closer releases the RPC
// connection.
func wireChain(ctx context.Context, cfg *config.Config, deps *Dependencies) (func(), error) {
	keyHex, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("wire: operator key: %w", err)
	}
	wallet, err := crypto.NewWallet(keyHex)
	if err != nil {
		return nil, fmt.Errorf("wire: operator wallet: %w", err)
	}

	if !common.IsHexAddress(cfg.Chain.RouterAddr) {
		return nil, fmt.Errorf("wire: invalid router address %q", cfg.Chain.RouterAddr)
	}
	if !common.IsHexAddress(cfg.Chain.WETHAddr) {
		return nil, fmt.Errorf("wire: invalid weth address %q", cfg.Chain.WETHAddr)
	}
	if !common.IsHexAddress(cfg.Chain.UtilityToken) {
		return nil, fmt.Errorf("wire: invalid utility token address %q", cfg.Chain.UtilityToken)
	}

	client, err := evm.Dial(ctx, cfg.Chain.RPCURL, wallet)
	if err != nil {
		return nil, fmt.Errorf("wire: rpc dial: %w", err)
	}
	if cfg.Chain.ChainID != 0 && client.ChainID().Int64() != cfg.Chain.ChainID {
		client.Close()
		return nil, fmt.Errorf("wire: connected to chain %s, config expects %d", client.ChainID(), cfg.Chain.ChainID)
	}

	deps.Router = evm.NewRouter(client,
		common.HexToAddress(cfg.Chain.RouterAddr),
		common.HexToAddress(cfg.Chain.WETHAddr),
	)
	deps.Utility = evm.NewERC20(client, common.HexToAddress(cfg.Chain.UtilityToken))
	deps.Payments = evm.NewNativeTransfer(client)
	return client.Close, nil
}

// wireSim builds the in-process constant-product router and ledger for
// server mode.
func wireSim(cfg *config.Config, deps *Dependencies) error {
	router := sim.NewRouter(int64(cfg.Sim.LPFeeBps))
	for assetHex, p := range cfg.Sim.Pools {
		if !common.IsHexAddress(assetHex) {
			return fmt.Errorf("wire: sim: invalid pool asset %q", assetHex)
		}
		baseReserve, ok := new(big.Int).SetString(p.BaseReserve, 10)
		if !ok || baseReserve.Sign() <= 0 {
			return fmt.Errorf("wire: sim: invalid base_reserve for %s", assetHex)
		}
		assetReserve, ok := new(big.Int).SetString(p.AssetReserve, 10)
		if !ok || assetReserve.Sign() <= 0 {
			return fmt.Errorf("wire: sim: invalid asset_reserve for %s", assetHex)
		}
		router.SetPool(common.HexToAddress(assetHex), baseReserve, assetReserve)
	}

	bank := sim.NewBank()
	deps.Router = router
	deps.Utility = bank
	deps.Payments = bank
	deps.SimBank = bank
	return nil
}

// wireCore assembles the registry and the fund service on top of the ports
// chosen above.
func wireCore(cfg *config.Config, deps *Dependencies, logger *slog.Logger) error {
	if !common.IsHexAddress(cfg.Registry.Treasury) {
		return fmt.Errorf("wire: invalid treasury address %q", cfg.Registry.Treasury)
	}
	// Treasury doubles as the registry owner unless one is configured.
	owner := common.HexToAddress(cfg.Registry.Treasury)
	if cfg.Registry.Owner != "" {
		if !common.IsHexAddress(cfg.Registry.Owner) {
			return fmt.Errorf("wire: invalid owner address %q", cfg.Registry.Owner)
		}
		owner = common.HexToAddress(cfg.Registry.Owner)
	}
	creationFee, ok := new(big.Int).SetString(cfg.Registry.CreationFee, 10)
	if !ok || creationFee.Sign() < 0 {
		return fmt.Errorf("wire: invalid creation_fee %q", cfg.Registry.CreationFee)
	}

	reg, err := registry.New(registry.Config{
		Owner:               owner,
		Treasury:            common.HexToAddress(cfg.Registry.Treasury),
		CreationFee:         creationFee,
		EntryFeeBps:         uint32(cfg.Registry.EntryFeeBps),
		FeeSplitCreatorPct:  uint8(cfg.Registry.FeeSplitCreatorPct),
		FeeSplitTreasuryPct: uint8(cfg.Registry.FeeSplitTreasuryPct),
		MaxSlippageBps:      uint32(cfg.Registry.MaxSlippageBps),
	}, registry.Deps{
		Utility:  deps.Utility,
		Oracle:   deps.Oracle,
		Router:   deps.Router,
		Payments: deps.Payments,
		Store:    deps.FundStore,
	}, logger)
	if err != nil {
		return fmt.Errorf("wire: registry: %w", err)
	}

	deps.Registry = reg
	deps.FundSvc = service.NewFundService(reg, deps.FundStore, deps.LockManager, deps.AuditStore, deps.SignalBus, logger)
	return nil
}
