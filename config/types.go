package config

// Log controls the structured logger and optional rotating file sink.
type Log struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
	Compress   bool   `toml:"Compress"`
}

// RPC tunes the JSON-RPC HTTP server. Timeouts are expressed in seconds.
type RPC struct {
	ReadHeaderTimeout int      `toml:"ReadHeaderTimeout"`
	ReadTimeout       int      `toml:"ReadTimeout"`
	WriteTimeout      int      `toml:"WriteTimeout"`
	IdleTimeout       int      `toml:"IdleTimeout"`
	MaxBodyBytes      int64    `toml:"MaxBodyBytes"`
	RateLimitPerSec   float64  `toml:"RateLimitPerSec"`
	RateLimitBurst    int      `toml:"RateLimitBurst"`
	TrustedProxies    []string `toml:"TrustedProxies"`
	JWTSecretEnv      string   `toml:"JWTSecretEnv"`
	JWTIssuer         string   `toml:"JWTIssuer"`
	JWTAudience       string   `toml:"JWTAudience"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint              string            `toml:"Endpoint"`
	Insecure              bool              `toml:"Insecure"`
	Headers               map[string]string `toml:"Headers"`
	Metrics               bool              `toml:"Metrics"`
	Traces                bool              `toml:"Traces"`
	SampleRatio           float64           `toml:"SampleRatio"`
	MetricIntervalSeconds int               `toml:"MetricIntervalSeconds"`
}

// Faucet configures the devnet faucet. Amounts are base units keyed by asset
// symbol.
type Faucet struct {
	Enabled         bool              `toml:"Enabled"`
	Amounts         map[string]uint64 `toml:"Amounts"`
	CooldownSeconds int64             `toml:"CooldownSeconds"`
}
