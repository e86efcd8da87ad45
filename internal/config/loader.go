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
// built-in defaults, applies BASKETD_* environment variable overrides, and
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

// applyEnvOverrides reads well-known BASKETD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "BASKETD_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "BASKETD_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "BASKETD_WALLET_KEY_PASSWORD")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "BASKETD_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "BASKETD_CHAIN_CHAIN_ID")
	setStr(&cfg.Chain.RouterAddr, "BASKETD_CHAIN_ROUTER_ADDR")
	setStr(&cfg.Chain.WETHAddr, "BASKETD_CHAIN_WETH_ADDR")
	setStr(&cfg.Chain.UtilityToken, "BASKETD_CHAIN_UTILITY_TOKEN")

	// ── Oracle ──
	setStr(&cfg.Oracle.HermesURL, "BASKETD_ORACLE_HERMES_URL")
	setDuration(&cfg.Oracle.MaxAge, "BASKETD_ORACLE_MAX_AGE")
	setStr(&cfg.Oracle.BaseFeed, "BASKETD_ORACLE_BASE_FEED")

	// ── Registry ──
	setStr(&cfg.Registry.Owner, "BASKETD_REGISTRY_OWNER")
	setStr(&cfg.Registry.Treasury, "BASKETD_REGISTRY_TREASURY")
	setStr(&cfg.Registry.CreationFee, "BASKETD_REGISTRY_CREATION_FEE")
	setInt(&cfg.Registry.EntryFeeBps, "BASKETD_REGISTRY_ENTRY_FEE_BPS")
	setInt(&cfg.Registry.FeeSplitCreatorPct, "BASKETD_REGISTRY_FEE_SPLIT_CREATOR_PCT")
	setInt(&cfg.Registry.FeeSplitTreasuryPct, "BASKETD_REGISTRY_FEE_SPLIT_TREASURY_PCT")
	setInt(&cfg.Registry.MaxSlippageBps, "BASKETD_REGISTRY_MAX_SLIPPAGE_BPS")

	// ── Sim ──
	setInt(&cfg.Sim.LPFeeBps, "BASKETD_SIM_LP_FEE_BPS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "BASKETD_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "BASKETD_POSTGRES_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "BASKETD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "BASKETD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "BASKETD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "BASKETD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "BASKETD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "BASKETD_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "BASKETD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "BASKETD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "BASKETD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "BASKETD_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "BASKETD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BASKETD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BASKETD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BASKETD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BASKETD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BASKETD_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "BASKETD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BASKETD_S3_REGION")
	setStr(&cfg.S3.Bucket, "BASKETD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BASKETD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BASKETD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "BASKETD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "BASKETD_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "BASKETD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "BASKETD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "BASKETD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "BASKETD_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "BASKETD_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "BASKETD_SERVER_RATE_LIMIT_WINDOW")

	// ── Snapshot ──
	setBool(&cfg.Snapshot.Enabled, "BASKETD_SNAPSHOT_ENABLED")
	setDuration(&cfg.Snapshot.Interval, "BASKETD_SNAPSHOT_INTERVAL")

	// ── Top-level ──
	setStr(&cfg.Mode, "BASKETD_MODE")
	setStr(&cfg.LogLevel, "BASKETD_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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
