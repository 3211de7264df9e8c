package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ListenAddress     string `toml:"ListenAddress"`
	DataDir           string `toml:"DataDir"`
	NetworkName       string `toml:"NetworkName"`
	Environment       string `toml:"Environment"`
	NativeAsset       string `toml:"NativeAsset"`
	ProvisionDeposit  uint64 `toml:"ProvisionDeposit"`
	AssetRegistryFile string `toml:"AssetRegistryFile"`

	Log       Log       `toml:"log"`
	RPC       RPC       `toml:"rpc"`
	Telemetry Telemetry `toml:"telemetry"`
	Faucet    Faucet    `toml:"faucet"`
}

// Default returns the configuration written for a fresh node.
func Default() *Config {
	return &Config{
		ListenAddress:    "127.0.0.1:8547",
		DataDir:          "./gift-data",
		NetworkName:      "giftchain-local",
		Environment:      "dev",
		NativeAsset:      "GIFT",
		ProvisionDeposit: 0,
		Log: Log{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		RPC: RPC{
			ReadHeaderTimeout: 5,
			ReadTimeout:       15,
			WriteTimeout:      15,
			IdleTimeout:       60,
			MaxBodyBytes:      1 << 20,
			RateLimitPerSec:   20,
			RateLimitBurst:    40,
			JWTSecretEnv:      "GIFT_RPC_JWT_SECRET",
			JWTIssuer:         "giftchain",
		},
		Telemetry: Telemetry{
			Endpoint:              "localhost:4318",
			Insecure:              true,
			SampleRatio:           1,
			MetricIntervalSeconds: 15,
		},
		Faucet: Faucet{
			Enabled:         false,
			Amounts:         map[string]uint64{},
			CooldownSeconds: 3600,
		},
	}
}

// Load loads the configuration from the given path. A missing file is created
// with defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = "giftchain-local"
	}
	c.NativeAsset = strings.ToUpper(strings.TrimSpace(c.NativeAsset))
	if c.NativeAsset == "" {
		c.NativeAsset = "GIFT"
	}
	if c.Faucet.Amounts == nil {
		c.Faucet.Amounts = map[string]uint64{}
	}
	normalized := make(map[string]uint64, len(c.Faucet.Amounts))
	for symbol, amount := range c.Faucet.Amounts {
		normalized[strings.ToUpper(strings.TrimSpace(symbol))] = amount
	}
	c.Faucet.Amounts = normalized
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// ResolvePath interprets p relative to the directory holding the config file.
func ResolvePath(configPath, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(configPath), p)
}
