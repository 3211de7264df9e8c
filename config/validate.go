package config

import (
	"fmt"
	"strings"
)

var (
	MaxRPCBodyBytes        = int64(16 << 20)
	MaxFaucetCooldownSecs  = int64(7 * 24 * 3600)
	supportedLogLevelNames = map[string]struct{}{"debug": {}, "info": {}, "warn": {}, "error": {}}
)

// Validate rejects configurations the node cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("ListenAddress must not be empty")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir must not be empty")
	}
	if level := strings.ToLower(strings.TrimSpace(c.Log.Level)); level != "" {
		if _, ok := supportedLogLevelNames[level]; !ok {
			return fmt.Errorf("log: unsupported level %q", c.Log.Level)
		}
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return fmt.Errorf("log: rotation limits must not be negative")
	}
	if c.RPC.MaxBodyBytes <= 0 || c.RPC.MaxBodyBytes > MaxRPCBodyBytes {
		return fmt.Errorf("rpc: MaxBodyBytes must be within (0, %d]", MaxRPCBodyBytes)
	}
	if c.RPC.RateLimitPerSec < 0 {
		return fmt.Errorf("rpc: RateLimitPerSec must not be negative")
	}
	if c.RPC.RateLimitPerSec > 0 && c.RPC.RateLimitBurst <= 0 {
		return fmt.Errorf("rpc: RateLimitBurst must be positive when rate limiting is enabled")
	}
	if c.RPC.ReadHeaderTimeout < 0 || c.RPC.ReadTimeout < 0 || c.RPC.WriteTimeout < 0 || c.RPC.IdleTimeout < 0 {
		return fmt.Errorf("rpc: timeouts must not be negative")
	}
	if (c.Telemetry.Metrics || c.Telemetry.Traces) && strings.TrimSpace(c.Telemetry.Endpoint) == "" {
		return fmt.Errorf("telemetry: Endpoint required when exporters are enabled")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: SampleRatio must be within [0, 1]")
	}
	if c.Telemetry.MetricIntervalSeconds < 0 {
		return fmt.Errorf("telemetry: MetricIntervalSeconds must not be negative")
	}
	if c.Faucet.Enabled {
		if len(c.Faucet.Amounts) == 0 {
			return fmt.Errorf("faucet: Amounts must list at least one asset")
		}
		for symbol, amount := range c.Faucet.Amounts {
			if amount == 0 {
				return fmt.Errorf("faucet: amount for %s must be positive", symbol)
			}
		}
		if c.Faucet.CooldownSeconds < 0 || c.Faucet.CooldownSeconds > MaxFaucetCooldownSecs {
			return fmt.Errorf("faucet: CooldownSeconds must be within [0, %d]", MaxFaucetCooldownSecs)
		}
		if strings.TrimSpace(c.RPC.JWTSecretEnv) == "" {
			return fmt.Errorf("faucet: rpc.JWTSecretEnv required to authorise faucet requests")
		}
	}
	return nil
}
