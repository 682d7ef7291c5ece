package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendRedis  = "redis"
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

type Config struct {
	Server ServerConfig
	Ledger LedgerConfig
	Store  StoreConfig
	Redis  RedisConfig
	Queue  QueueConfig
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	AdminKey string `mapstructure:"admin_key"`
}

type LedgerConfig struct {
	IssuerAddress  string `mapstructure:"issuer_address"`
	InitialDeposit string `mapstructure:"initial_deposit"` // wei, decimal
}

type StoreConfig struct {
	Backend  string `mapstructure:"backend"`
	BoltPath string `mapstructure:"bolt_path"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

type QueueConfig struct {
	BlockTimeoutSec int64 `mapstructure:"block_timeout_sec"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("ledger.initial_deposit", "0")
	v.SetDefault("store.backend", BackendRedis)
	v.SetDefault("store.bolt_path", "payments.db")
	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("queue.block_timeout_sec", 5)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	_ = v.ReadInConfig()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit env bindings
	bindings := map[string]string{
		"server.port":             "PORT",
		"server.admin_key":        "ADMIN_KEY",
		"ledger.issuer_address":   "ISSUER_ADDRESS",
		"ledger.initial_deposit":  "INITIAL_DEPOSIT",
		"store.backend":           "STORE_BACKEND",
		"store.bolt_path":         "BOLT_PATH",
		"redis.addr":              "REDIS_ADDR",
		"redis.password":          "REDIS_PASSWORD",
		"queue.block_timeout_sec": "QUEUE_BLOCK_TIMEOUT_SEC",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	type req struct {
		val  string
		name string
	}
	for _, r := range []req{
		{c.Server.AdminKey, "ADMIN_KEY"},
		{c.Ledger.IssuerAddress, "ISSUER_ADDRESS"},
	} {
		if r.val == "" {
			return fmt.Errorf("required config missing: %s", r.name)
		}
	}
	if !common.IsHexAddress(c.Ledger.IssuerAddress) {
		return fmt.Errorf("invalid ISSUER_ADDRESS %q", c.Ledger.IssuerAddress)
	}
	if _, err := c.InitialDeposit(); err != nil {
		return err
	}
	switch c.Store.Backend {
	case BackendRedis, BackendMemory:
	case BackendBolt:
		if c.Store.BoltPath == "" {
			return fmt.Errorf("required config missing: BOLT_PATH")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}
	if c.Queue.BlockTimeoutSec <= 0 {
		return fmt.Errorf("QUEUE_BLOCK_TIMEOUT_SEC must be positive")
	}
	return nil
}

// Issuer returns the configured issuer address.
func (c *Config) Issuer() common.Address {
	return common.HexToAddress(c.Ledger.IssuerAddress)
}

// InitialDeposit parses ledger.initial_deposit as a non-negative wei amount.
func (c *Config) InitialDeposit() (*big.Int, error) {
	s := c.Ledger.InitialDeposit
	if s == "" {
		return new(big.Int), nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("invalid INITIAL_DEPOSIT %q", s)
	}
	return n, nil
}
