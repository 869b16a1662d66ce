package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"gigescrow/internal/escrow"
	"gigescrow/internal/store"
)

// EnvPrefix prefixes every environment override, e.g. ESCROW_CHAIN_ALGOD_URL.
const EnvPrefix = "ESCROW"

// Config is the service configuration.
type Config struct {
	// Logging level
	LogLevel string `mapstructure:"log_level"`

	HTTP         HTTP         `mapstructure:"http"`
	Auth         Auth         `mapstructure:"auth"`
	Chain        Chain        `mapstructure:"chain"`
	Confirmation Confirmation `mapstructure:"confirmation"`
	Store        Store        `mapstructure:"store"`
}

type HTTP struct {
	ListenAddress     string        `mapstructure:"listen_address"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	// Maximum time the server waits for in-flight requests on shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// How long a stored response is replayed for a repeated X-Idempotency-Key
	IdempotencyWindow time.Duration `mapstructure:"idempotency_window"`
}

type Auth struct {
	HMACSecret string        `mapstructure:"hmac_secret"`
	ClockSkew  time.Duration `mapstructure:"clock_skew"`
}

type Chain struct {
	// Empty URL runs against the in-process fake ledger
	AlgodURL       string `mapstructure:"algod_url"`
	AlgodToken     string `mapstructure:"algod_token"`
	SignerMnemonic string `mapstructure:"signer_mnemonic"`
	// Optional indexer, used to settle transactions algod no longer reports as pending
	IndexerURL   string `mapstructure:"indexer_url"`
	IndexerToken string `mapstructure:"indexer_token"`
	// Decimal places of the settlement currency, used to convert display prices
	AssetDecimals int32 `mapstructure:"asset_decimals"`
	// Per-leg fee the buyer must be able to pay on top of the price
	MaxLegFee uint64 `mapstructure:"max_leg_fee"`
}

type Confirmation struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxRounds    uint64        `mapstructure:"max_rounds"`
}

type Store struct {
	// One of memory, sqlite, postgres, redis
	Driver      string `mapstructure:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	Redis       Redis  `mapstructure:"redis"`
}

type Redis struct {
	Host     string `mapstructure:"host"`
	Port     uint16 `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("http.listen_address", ":3000")
	v.SetDefault("http.read_header_timeout", "15s")
	v.SetDefault("http.shutdown_timeout", "10s")
	v.SetDefault("http.idempotency_window", "24h")

	v.SetDefault("auth.hmac_secret", "")
	v.SetDefault("auth.clock_skew", "60s")

	v.SetDefault("chain.algod_url", "")
	v.SetDefault("chain.algod_token", "")
	v.SetDefault("chain.signer_mnemonic", "")
	v.SetDefault("chain.indexer_url", "")
	v.SetDefault("chain.indexer_token", "")
	v.SetDefault("chain.asset_decimals", 6)
	v.SetDefault("chain.max_leg_fee", escrow.MaxLegFee)

	v.SetDefault("confirmation.poll_interval", "1s")
	v.SetDefault("confirmation.max_rounds", 30)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "gigescrow.db")
	v.SetDefault("store.postgres_dsn", "")
	v.SetDefault("store.redis.host", "localhost")
	v.SetDefault("store.redis.port", 6379)
	v.SetDefault("store.redis.user", "")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", "gigescrow")
}

// Load reads configuration from filename (JSON, YAML or TOML by extension)
// and the environment. An empty filename means defaults plus environment.
func Load(filename string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if filename != "" {
		v.SetConfigFile(filename)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", filename, err)
		}
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "sqlite", "postgres", "redis":
	default:
		return fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver)
	}
	if c.Store.Driver == "postgres" && c.Store.PostgresDSN == "" {
		return fmt.Errorf("store.postgres_dsn is required for the postgres driver")
	}
	if c.Chain.AssetDecimals < 0 || c.Chain.AssetDecimals > 19 {
		return fmt.Errorf("chain.asset_decimals: %d out of range", c.Chain.AssetDecimals)
	}
	if c.Chain.MaxLegFee == 0 || c.Chain.MaxLegFee > escrow.MaxLegFee {
		return fmt.Errorf("chain.max_leg_fee: must be between 1 and %d", escrow.MaxLegFee)
	}
	if c.Chain.AlgodURL != "" && c.Chain.SignerMnemonic == "" {
		return fmt.Errorf("chain.signer_mnemonic is required with chain.algod_url")
	}
	if c.HTTP.IdempotencyWindow <= 0 {
		return fmt.Errorf("http.idempotency_window must be positive")
	}
	if c.Confirmation.PollInterval <= 0 || c.Confirmation.MaxRounds == 0 {
		return fmt.Errorf("confirmation: poll_interval and max_rounds must be positive")
	}
	return nil
}

func (c *Config) ConfirmationPolicy() escrow.ConfirmationPolicy {
	return escrow.ConfirmationPolicy{
		PollInterval: c.Confirmation.PollInterval,
		MaxRounds:    c.Confirmation.MaxRounds,
	}
}

func (c *Config) RedisConfig() store.RedisConfig {
	r := c.Store.Redis
	return store.RedisConfig{
		Host:     r.Host,
		Port:     r.Port,
		User:     r.User,
		Password: r.Password,
		DB:       r.DB,
		Prefix:   r.Prefix,
	}
}
