package config

import (
	"strings"
	"testing"
	"time"
)

// validConfig is Defaults plus the fields an operator always has to supply.
func validConfig() Config {
	cfg := Defaults()
	cfg.Registry.Owner = "0x0000000000000000000000000000000000000101"
	cfg.Registry.Treasury = "0x0000000000000000000000000000000000000102"
	return cfg
}

func TestValidateDefaults(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "bogus"
	cfg.LogLevel = "loud"
	cfg.Oracle.HermesURL = ""
	cfg.Registry.FeeSplitCreatorPct = 70 // 70 + 50 != 100

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate accepted a broken config")
	}
	for _, want := range []string{"unknown mode", "unknown log_level", "hermes_url", "fee_split"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestValidateModeRequirements(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name: "engine mode requires chain wiring",
			mutate: func(c *Config) {
				c.Mode = "engine"
				c.Chain.RouterAddr = ""
			},
			want: "router_addr",
		},
		{
			name: "engine mode requires a wallet key",
			mutate: func(c *Config) {
				c.Mode = "engine"
				c.Chain.RouterAddr = "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"
				c.Chain.WETHAddr = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
				c.Chain.UtilityToken = "0x0000000000000000000000000000000000000401"
			},
			want: "private_key or encrypted_key_path",
		},
		{
			name: "encrypted key needs a password",
			mutate: func(c *Config) {
				c.Wallet.EncryptedKeyPath = "/etc/basketd/key.json"
			},
			want: "key_password",
		},
		{
			name: "snapshot mode requires s3",
			mutate: func(c *Config) {
				c.Mode = "snapshot"
				c.S3.Bucket = ""
			},
			want: "s3: bucket",
		},
		{
			name: "enabled snapshots need an interval",
			mutate: func(c *Config) {
				c.Snapshot.Enabled = true
				c.Snapshot.Interval = duration{}
			},
			want: "snapshot: interval",
		},
		{
			name: "redis addr when enabled",
			mutate: func(c *Config) {
				c.Redis.Addr = ""
			},
			want: "redis: addr",
		},
		{
			name: "server port range",
			mutate: func(c *Config) {
				c.Server.Port = 70_000
			},
			want: "server: port",
		},
		{
			name: "negative rate limit",
			mutate: func(c *Config) {
				c.Server.RateLimit = -1
			},
			want: "server: rate_limit",
		},
		{
			name: "rate limit without window",
			mutate: func(c *Config) {
				c.Server.RateLimit = 10
				c.Server.RateLimitWindow = duration{}
			},
			want: "rate_limit_window",
		},
		{
			name: "postgres pool bounds",
			mutate: func(c *Config) {
				c.Postgres.PoolMinConns = 20
				c.Postgres.PoolMaxConns = 10
			},
			want: "pool_min_conns must not exceed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate accepted an invalid config")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error missing %q:\n%v", tt.want, err)
			}
		})
	}
}

func TestValidateDSNSkipsHostChecks(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.DSN = "postgres://basketd:secret@db:5432/basketd"
	cfg.Postgres.Host = ""
	cfg.Postgres.Database = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate with DSN: %v", err)
	}
}

func TestDurationUnmarshalText(t *testing.T) {
	var d duration
	if err := d.UnmarshalText([]byte("90s")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if d.Duration != 90*time.Second {
		t.Fatalf("parsed %s, want 90s", d.Duration)
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Fatal("bad duration accepted")
	}

	out, err := duration{5 * time.Minute}.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	if string(out) != "5m0s" {
		t.Fatalf("MarshalText = %q, want 5m0s", out)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BASKETD_MODE", "full")
	t.Setenv("BASKETD_SERVER_PORT", "9100")
	t.Setenv("BASKETD_REDIS_ENABLED", "false")
	t.Setenv("BASKETD_ORACLE_MAX_AGE", "2m")
	t.Setenv("BASKETD_SERVER_RATE_LIMIT", "120")
	t.Setenv("BASKETD_SERVER_RATE_LIMIT_WINDOW", "30s")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Mode != "full" {
		t.Fatalf("Mode = %q, want full", cfg.Mode)
	}
	if cfg.Server.Port != 9100 {
		t.Fatalf("Server.Port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Redis.Enabled {
		t.Fatal("Redis.Enabled not overridden to false")
	}
	if cfg.Oracle.MaxAge.Duration != 2*time.Minute {
		t.Fatalf("Oracle.MaxAge = %s, want 2m", cfg.Oracle.MaxAge.Duration)
	}
	if cfg.Server.RateLimit != 120 {
		t.Fatalf("Server.RateLimit = %d, want 120", cfg.Server.RateLimit)
	}
	if cfg.Server.RateLimitWindow.Duration != 30*time.Second {
		t.Fatalf("Server.RateLimitWindow = %s, want 30s", cfg.Server.RateLimitWindow.Duration)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Wallet.PrivateKey = "deadbeef"
	cfg.Postgres.Password = "hunter2"
	cfg.Redis.Password = "hunter2"
	cfg.S3.SecretKey = "hunter2"
	cfg.Server.APIKey = "hunter2"

	red := RedactedConfig(&cfg)
	for name, got := range map[string]string{
		"wallet private key": red.Wallet.PrivateKey,
		"postgres password":  red.Postgres.Password,
		"redis password":     red.Redis.Password,
		"s3 secret key":      red.S3.SecretKey,
		"server api key":     red.Server.APIKey,
	} {
		if strings.Contains(got, "hunter2") || strings.Contains(got, "deadbeef") {
			t.Errorf("%s leaked through redaction: %q", name, got)
		}
	}

	// Redaction must not write back into the live config.
	if cfg.Postgres.Password != "hunter2" {
		t.Fatal("RedactedConfig mutated the source config")
	}
}
