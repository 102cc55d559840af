// Package config loads alkanesd's configuration, following the teacher's
// pkg/config/config.go loader (viper-backed, YAML files under cmd/config,
// environment overlay via an env-named file merge plus AutomaticEnv).
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/synnergy-labs/alkanes-indexer/internal/fueltank"
)

// Config is the unified configuration for an alkanesd node.
type Config struct {
	Node struct {
		DBPath   string `mapstructure:"db_path" json:"db_path"`
		LogLevel string `mapstructure:"log_level" json:"log_level"`
	} `mapstructure:"node" json:"node"`

	Network struct {
		Name                string `mapstructure:"name" json:"name"`
		TotalFuel           uint64 `mapstructure:"total_fuel" json:"total_fuel"`
		MinimumFuel         uint64 `mapstructure:"minimum_fuel" json:"minimum_fuel"`
		FuelPerVByte        uint64 `mapstructure:"fuel_per_vbyte" json:"fuel_per_vbyte"`
		FuelPerRequestByte  uint64 `mapstructure:"fuel_per_request_byte" json:"fuel_per_request_byte"`
		FuelPerLoadByte     uint64 `mapstructure:"fuel_per_load_byte" json:"fuel_per_load_byte"`
		FuelPerStoreByte    uint64 `mapstructure:"fuel_per_store_byte" json:"fuel_per_store_byte"`
		FuelSequence        uint64 `mapstructure:"fuel_sequence" json:"fuel_sequence"`
		FuelFuel            uint64 `mapstructure:"fuel_fuel" json:"fuel_fuel"`
		FuelExtcall         uint64 `mapstructure:"fuel_extcall" json:"fuel_extcall"`
		FuelHeight          uint64 `mapstructure:"fuel_height" json:"fuel_height"`
		FuelBalance         uint64 `mapstructure:"fuel_balance" json:"fuel_balance"`
		FuelExtcallDeploy   uint64 `mapstructure:"fuel_extcall_deploy" json:"fuel_extcall_deploy"`
		FuelLoadBlock       uint64 `mapstructure:"fuel_load_block" json:"fuel_load_block"`
		FuelLoadTransaction uint64 `mapstructure:"fuel_load_transaction" json:"fuel_load_transaction"`
		GenesisHeight       uint64 `mapstructure:"genesis_height" json:"genesis_height"`
	} `mapstructure:"network" json:"network"`

	View struct {
		ListenAddr        string `mapstructure:"listen_addr" json:"listen_addr"`
		RateLimitPerSec   int    `mapstructure:"rate_limit_per_sec" json:"rate_limit_per_sec"`
		RateLimitBurst    int    `mapstructure:"rate_limit_burst" json:"rate_limit_burst"`
	} `mapstructure:"view" json:"view"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Default returns a Config pre-populated with MainnetParams and sane
// local defaults, used when no config file is present (e.g. tests).
func Default() Config {
	var c Config
	c.Node.DBPath = "./alkanes-data"
	c.Node.LogLevel = "info"
	c.Network.Name = fueltank.MainnetParams.Name
	c.Network.TotalFuel = fueltank.MainnetParams.TotalFuel
	c.Network.MinimumFuel = fueltank.MainnetParams.MinimumFuel
	c.Network.FuelPerVByte = fueltank.MainnetParams.FuelPerVByte
	c.Network.FuelPerRequestByte = fueltank.MainnetParams.FuelPerRequestByte
	c.Network.FuelPerLoadByte = fueltank.MainnetParams.FuelPerLoadByte
	c.Network.FuelPerStoreByte = fueltank.MainnetParams.FuelPerStoreByte
	c.Network.FuelSequence = fueltank.MainnetParams.FuelSequence
	c.Network.FuelFuel = fueltank.MainnetParams.FuelFuel
	c.Network.FuelExtcall = fueltank.MainnetParams.FuelExtcall
	c.Network.FuelHeight = fueltank.MainnetParams.FuelHeight
	c.Network.FuelBalance = fueltank.MainnetParams.FuelBalance
	c.Network.FuelExtcallDeploy = fueltank.MainnetParams.FuelExtcallDeploy
	c.Network.FuelLoadBlock = fueltank.MainnetParams.FuelLoadBlock
	c.Network.FuelLoadTransaction = fueltank.MainnetParams.FuelLoadTransaction
	c.Network.GenesisHeight = fueltank.MainnetParams.GenesisHeight
	c.View.ListenAddr = "127.0.0.1:8080"
	c.View.RateLimitPerSec = 20
	c.View.RateLimitBurst = 40
	return c
}

// NetworkParams projects the config's Network block into a
// fueltank.NetworkParams, the network-binding fuel table.
func (c Config) NetworkParams() fueltank.NetworkParams {
	return fueltank.NetworkParams{
		Name:                c.Network.Name,
		TotalFuel:           c.Network.TotalFuel,
		MinimumFuel:         c.Network.MinimumFuel,
		FuelPerVByte:        c.Network.FuelPerVByte,
		FuelPerRequestByte:  c.Network.FuelPerRequestByte,
		FuelPerLoadByte:     c.Network.FuelPerLoadByte,
		FuelPerStoreByte:    c.Network.FuelPerStoreByte,
		FuelSequence:        c.Network.FuelSequence,
		FuelFuel:            c.Network.FuelFuel,
		FuelExtcall:         c.Network.FuelExtcall,
		FuelHeight:          c.Network.FuelHeight,
		FuelBalance:         c.Network.FuelBalance,
		FuelExtcallDeploy:   c.Network.FuelExtcallDeploy,
		FuelLoadBlock:       c.Network.FuelLoadBlock,
		FuelLoadTransaction: c.Network.FuelLoadTransaction,
		GenesisHeight:       c.Network.GenesisHeight,
	}
}

// Load reads cmd/config/default.yaml (and, if env is non-empty, merges
// cmd/config/<env>.yaml over it), then applies ALKANESD_-prefixed
// environment overrides, following the teacher's Load(env) shape.
func Load(env string) (*Config, error) {
	defaults := Default()
	setDefaults(defaults)

	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("config: load default config: %w", err)
			}
		}
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("config: merge %s config: %w", env, err)
			}
		}
	}

	viper.SetEnvPrefix("ALKANESD")
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, fmt.Errorf("config: unmarshal config: %w", err)
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the ALKANESD_ENV environment
// variable, following the teacher's LoadFromEnv shape.
func LoadFromEnv() (*Config, error) {
	env := os.Getenv("ALKANESD_ENV")
	return Load(env)
}

// setDefaults registers c's fields as viper defaults so that Unmarshal
// falls back to them for any key absent from every config file.
func setDefaults(c Config) {
	viper.SetDefault("node.db_path", c.Node.DBPath)
	viper.SetDefault("node.log_level", c.Node.LogLevel)
	viper.SetDefault("network.name", c.Network.Name)
	viper.SetDefault("network.total_fuel", c.Network.TotalFuel)
	viper.SetDefault("network.minimum_fuel", c.Network.MinimumFuel)
	viper.SetDefault("network.fuel_per_vbyte", c.Network.FuelPerVByte)
	viper.SetDefault("network.fuel_per_request_byte", c.Network.FuelPerRequestByte)
	viper.SetDefault("network.fuel_per_load_byte", c.Network.FuelPerLoadByte)
	viper.SetDefault("network.fuel_per_store_byte", c.Network.FuelPerStoreByte)
	viper.SetDefault("network.fuel_sequence", c.Network.FuelSequence)
	viper.SetDefault("network.fuel_fuel", c.Network.FuelFuel)
	viper.SetDefault("network.fuel_extcall", c.Network.FuelExtcall)
	viper.SetDefault("network.fuel_height", c.Network.FuelHeight)
	viper.SetDefault("network.fuel_balance", c.Network.FuelBalance)
	viper.SetDefault("network.fuel_extcall_deploy", c.Network.FuelExtcallDeploy)
	viper.SetDefault("network.fuel_load_block", c.Network.FuelLoadBlock)
	viper.SetDefault("network.fuel_load_transaction", c.Network.FuelLoadTransaction)
	viper.SetDefault("network.genesis_height", c.Network.GenesisHeight)
	viper.SetDefault("view.listen_addr", c.View.ListenAddr)
	viper.SetDefault("view.rate_limit_per_sec", c.View.RateLimitPerSec)
	viper.SetDefault("view.rate_limit_burst", c.View.RateLimitBurst)
}
