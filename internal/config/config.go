// Package config defines the top-level configuration for the basket daemon
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by BASKETD_* environment variables.
type Config struct {
	Wallet   WalletConfig   `toml:"wallet"`
	Chain    ChainConfig    `toml:"chain"`
	Oracle   OracleConfig   `toml:"oracle"`
	Registry RegistryConfig `toml:"registry"`
	Sim      SimConfig      `toml:"sim"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Snapshot SnapshotConfig `toml:"snapshot"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// WalletConfig holds the operator wallet credentials used to sign swap and
// payout transactions.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig holds RPC and contract parameters for the on-chain execution
// path (engine and full modes).
type ChainConfig struct {
	RPCURL       string `toml:"rpc_url"`
	ChainID      int64  `toml:"chain_id"`
	RouterAddr   string `toml:"router_addr"`
	WETHAddr     string `toml:"weth_addr"`
	UtilityToken string `toml:"utility_token"`
}

// OracleConfig holds the price oracle endpoint and staleness policy.
type OracleConfig struct {
	HermesURL string   `toml:"hermes_url"`
	MaxAge    duration `toml:"max_age"`
	// Feeds maps asset addresses (hex) to 32-byte price feed ids (hex).
	Feeds map[string]string `toml:"feeds"`
	// BaseFeed is the feed id for the base (native) asset.
	BaseFeed string `toml:"base_feed"`
}

// RegistryConfig holds fund-creation policy shared by every fund the registry
// spawns.
type RegistryConfig struct {
	Owner               string `toml:"owner"`
	Treasury            string `toml:"treasury"`
	CreationFee         string `toml:"creation_fee"`
	EntryFeeBps         int    `toml:"entry_fee_bps"`
	FeeSplitCreatorPct  int    `toml:"fee_split_creator_pct"`
	FeeSplitTreasuryPct int    `toml:"fee_split_treasury_pct"`
	MaxSlippageBps      int    `toml:"max_slippage_bps"`
}

// SimConfig tunes the in-process simulated router used by server mode.
type SimConfig struct {
	LPFeeBps int `toml:"lp_fee_bps"`
	// Pools seeds constant-product liquidity per asset (hex address keys).
	Pools map[string]SimPool `toml:"pools"`
}

// SimPool is one seeded base/asset reserve pair, 18-decimal fixed-point
// decimal strings.
type SimPool struct {
	BaseReserve  string `toml:"base_reserve"`
	AssetReserve string `toml:"asset_reserve"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`

	// RateLimit allows this many requests per client per RateLimitWindow
	// when Redis-backed limiting is active.
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// SnapshotConfig tunes the periodic NAV snapshot archiver.
type SnapshotConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval duration `toml:"interval"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
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
		Chain: ChainConfig{
			RPCURL:  "http://localhost:8545",
			ChainID: 1,
		},
		Oracle: OracleConfig{
			HermesURL: "https://hermes.pyth.network",
			MaxAge:    duration{60 * time.Second},
			Feeds:     map[string]string{},
		},
		Registry: RegistryConfig{
			CreationFee:         "1000000000000000000",
			EntryFeeBps:         100,
			FeeSplitCreatorPct:  50,
			FeeSplitTreasuryPct: 50,
			MaxSlippageBps:      300,
		},
		Sim: SimConfig{
			LPFeeBps: 30,
			Pools:    map[string]SimPool{},
		},
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "basketd-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       60,
			RateLimitWindow: duration{time.Minute},
		},
		Snapshot: SnapshotConfig{
			Enabled:  false,
			Interval: duration{15 * time.Minute},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":   true,
	"engine":   true,
	"snapshot": true,
	"full":     true,
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

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, engine, snapshot, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Chain — engine and full modes execute swaps on-chain.
	needsChain := c.Mode == "engine" || c.Mode == "full"
	if needsChain {
		if c.Chain.RPCURL == "" {
			errs = append(errs, "chain: rpc_url must not be empty for mode "+c.Mode)
		}
		if c.Chain.RouterAddr == "" {
			errs = append(errs, "chain: router_addr must not be empty for mode "+c.Mode)
		}
		if c.Chain.WETHAddr == "" {
			errs = append(errs, "chain: weth_addr must not be empty for mode "+c.Mode)
		}
		if c.Chain.UtilityToken == "" {
			errs = append(errs, "chain: utility_token must not be empty for mode "+c.Mode)
		}
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	// Oracle
	if c.Oracle.HermesURL == "" {
		errs = append(errs, "oracle: hermes_url must not be empty")
	}
	if c.Oracle.MaxAge.Duration <= 0 {
		errs = append(errs, "oracle: max_age must be > 0")
	}

	// Registry
	if c.Registry.Treasury == "" {
		errs = append(errs, "registry: treasury must not be empty")
	}
	if c.Registry.EntryFeeBps < 0 || c.Registry.EntryFeeBps > 10_000 {
		errs = append(errs, fmt.Sprintf("registry: entry_fee_bps must be 0-10000, got %d", c.Registry.EntryFeeBps))
	}
	if c.Registry.FeeSplitCreatorPct+c.Registry.FeeSplitTreasuryPct != 100 {
		errs = append(errs, "registry: fee_split_creator_pct and fee_split_treasury_pct must sum to 100")
	}
	if c.Registry.MaxSlippageBps < 0 || c.Registry.MaxSlippageBps > 10_000 {
		errs = append(errs, fmt.Sprintf("registry: max_slippage_bps must be 0-10000, got %d", c.Registry.MaxSlippageBps))
	}

	// Sim
	if c.Sim.LPFeeBps < 0 || c.Sim.LPFeeBps >= 10_000 {
		errs = append(errs, fmt.Sprintf("sim: lp_fee_bps must be 0-9999, got %d", c.Sim.LPFeeBps))
	}

	// Postgres
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

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3 — only the snapshot archiver touches object storage.
	if c.Snapshot.Enabled || c.Mode == "snapshot" {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when snapshots are enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when snapshots are enabled")
		}
		if c.Snapshot.Interval.Duration <= 0 {
			errs = append(errs, "snapshot: interval must be > 0")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, fmt.Sprintf("server: rate_limit must be >= 0, got %d", c.Server.RateLimit))
		}
		if c.Server.RateLimit > 0 && c.Server.RateLimitWindow.Duration <= 0 {
			errs = append(errs, "server: rate_limit_window must be > 0 when rate_limit is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
