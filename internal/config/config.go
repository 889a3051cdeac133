// Package config loads betchaind settings from config/betchain.yaml,
// a .env file and BETCHAIN_* environment variables, in rising priority.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/phenomenon0/betchain/pkg/bet"
	"github.com/phenomenon0/betchain/pkg/deploy"
	"github.com/phenomenon0/betchain/pkg/eth"
)

// EnvPrefix prefixes every environment override, e.g. BETCHAIN_SERVER_ADDR.
const EnvPrefix = "BETCHAIN"

// Config is the daemon configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Bet      BetConfig      `mapstructure:"bet"`
	Pool     PoolConfig     `mapstructure:"pool"`
	Keeper   KeeperConfig   `mapstructure:"keeper"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	RateLimit    float64       `mapstructure:"rate_limit"` // requests per second per client
	RateBurst    int           `mapstructure:"rate_burst"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
}

// ChainConfig configures the local node.
type ChainConfig struct {
	DevAccounts int    `mapstructure:"dev_accounts"`
	FundEther   string `mapstructure:"fund_ether"`
}

// BetConfig configures the wagering engine.
type BetConfig struct {
	MinimumBet string `mapstructure:"minimum_bet"` // ether
	Payout     string `mapstructure:"payout"`
}

// PoolConfig configures DefiPool.
type PoolConfig struct {
	RateBps int64 `mapstructure:"rate_bps"`
}

// KeeperConfig configures automatic settlement.
type KeeperConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Interval     time.Duration `mapstructure:"interval"`
	AccountIndex int           `mapstructure:"account_index"`
}

// PostgresConfig enables the log indexer when DSN is set.
type PostgresConfig struct {
	DSN        string `mapstructure:"dsn"`
	BufferSize int    `mapstructure:"buffer_size"`
}

// RedisConfig enables stream publishing when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	BufferSize int    `mapstructure:"buffer_size"`
}

// LogConfig configures logrus.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("chain.dev_accounts", 10)
	v.SetDefault("chain.fund_ether", "100")

	v.SetDefault("bet.minimum_bet", "0.1")
	v.SetDefault("bet.payout", bet.StakeWeighted.String())

	v.SetDefault("pool.rate_bps", 500)

	v.SetDefault("keeper.enabled", true)
	v.SetDefault("keeper.interval", 15*time.Second)
	v.SetDefault("keeper.account_index", 0)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.buffer_size", 1024)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.buffer_size", 1024)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration. An empty path searches ./config and . for
// betchain.yaml, which may be absent; an explicit path must exist.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("betchain")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail at startup.
func (c *Config) Validate() error {
	if _, err := c.BetOptions(); err != nil {
		return err
	}
	if _, err := c.FundAmount(); err != nil {
		return err
	}
	if c.Chain.DevAccounts < 2 {
		return fmt.Errorf("chain.dev_accounts must be at least 2, got %d", c.Chain.DevAccounts)
	}
	if c.Keeper.AccountIndex < 0 || c.Keeper.AccountIndex >= c.Chain.DevAccounts {
		return fmt.Errorf("keeper.account_index %d out of range", c.Keeper.AccountIndex)
	}
	if c.Pool.RateBps < 0 {
		return fmt.Errorf("pool.rate_bps must not be negative")
	}
	if c.Server.RateLimit <= 0 || c.Server.RateBurst <= 0 {
		return fmt.Errorf("server.rate_limit and server.rate_burst must be positive")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// BetOptions converts the configured rules into deploy options.
func (c *Config) BetOptions() (deploy.Options, error) {
	minimum, err := decimal.NewFromString(c.Bet.MinimumBet)
	if err != nil {
		return deploy.Options{}, fmt.Errorf("bet.minimum_bet: %w", err)
	}
	if !minimum.IsPositive() {
		return deploy.Options{}, fmt.Errorf("bet.minimum_bet must be positive, got %s", minimum)
	}
	wei, err := eth.DecimalToUnits(minimum, eth.EtherDecimals)
	if err != nil {
		return deploy.Options{}, fmt.Errorf("bet.minimum_bet: %w", err)
	}
	policy, err := bet.ParsePayoutPolicy(c.Bet.Payout)
	if err != nil {
		return deploy.Options{}, fmt.Errorf("bet.payout: %w", err)
	}
	return deploy.Options{
		Bet:         bet.Config{MinimumBet: wei, Payout: policy},
		PoolRateBps: c.Pool.RateBps,
	}, nil
}

// FundAmount is the ether credited to every dev account, in wei.
func (c *Config) FundAmount() (*big.Int, error) {
	wei, err := eth.ParseEther(c.Chain.FundEther)
	if err != nil {
		return nil, fmt.Errorf("chain.fund_ether: %w", err)
	}
	return wei, nil
}

// NewLogger builds a logrus logger from the log section.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(c.Log.Level); err == nil {
		logger.SetLevel(level)
	}
	if strings.EqualFold(c.Log.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
