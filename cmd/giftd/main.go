package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"giftchain/config"
	"giftchain/core"
	"giftchain/core/events"
	"giftchain/observability/logging"
	telemetry "giftchain/observability/otel"
	"giftchain/rpc"
	"giftchain/storage"
	"giftchain/storage/eventlog"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configFile); err != nil {
		fmt.Fprintf(os.Stderr, "giftd: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser := logging.Setup(logging.Options{
		Service:    "giftd",
		Env:        cfg.Environment,
		Level:      cfg.Log.Level,
		File:       config.ResolvePath(configPath, cfg.Log.File),
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	defer logCloser.Close()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "giftd",
		Environment:    cfg.Environment,
		Network:        cfg.NetworkName,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		Headers:        cfg.Telemetry.Headers,
		EnvHeaders:     os.Getenv(telemetry.HeadersEnv),
		Metrics:        cfg.Telemetry.Metrics,
		Traces:         cfg.Telemetry.Traces,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		MetricInterval: time.Duration(cfg.Telemetry.MetricIntervalSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	dataDir := config.ResolvePath(configPath, cfg.DataDir)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("prepare data directory: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(dataDir, "state"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	journal, err := eventlog.Open(filepath.Join(dataDir, "events.db"))
	if err != nil {
		return fmt.Errorf("open event journal: %w", err)
	}
	defer journal.Close()
	if err := journal.Verify(ctx); err != nil {
		return fmt.Errorf("verify event journal: %w", err)
	}

	node, err := core.NewNode(db, nodeOptions(cfg, logger))
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}
	assets, err := config.LoadAssets(config.ResolvePath(configPath, cfg.AssetRegistryFile), cfg.NativeAsset)
	if err != nil {
		return err
	}
	if err := node.RegisterAssets(assetInfos(assets)); err != nil {
		return fmt.Errorf("register assets: %w", err)
	}

	feed := events.NewFeed()
	node.Subscribe(eventlog.NewRecorder(journal, logger))
	node.Subscribe(feed)

	server := rpc.NewServer(node, journal, feed, rpcConfig(cfg, os.Getenv), logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.ListenAddress)
	}()
	logger.Info("giftd started",
		slog.String("network", cfg.NetworkName),
		slog.String("listen", cfg.ListenAddress),
		slog.Int("assets", len(assets)),
		slog.Bool("faucet", cfg.Faucet.Enabled))

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("rpc server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("rpc shutdown: %w", err)
	}
	return <-errCh
}

func nodeOptions(cfg *config.Config, logger *slog.Logger) core.Options {
	return core.Options{
		NetworkName:      cfg.NetworkName,
		NativeAsset:      cfg.NativeAsset,
		ProvisionDeposit: cfg.ProvisionDeposit,
		Faucet: core.FaucetPolicy{
			Enabled:  cfg.Faucet.Enabled,
			Amounts:  cfg.Faucet.Amounts,
			Cooldown: time.Duration(cfg.Faucet.CooldownSeconds) * time.Second,
		},
		Logger: logger,
	}
}

func assetInfos(specs []config.AssetSpec) []core.AssetInfo {
	out := make([]core.AssetInfo, 0, len(specs))
	for _, spec := range specs {
		out = append(out, core.AssetInfo{Symbol: spec.Symbol, Name: spec.Name, Decimals: spec.Decimals})
	}
	return out
}

func rpcConfig(cfg *config.Config, getenv func(string) string) rpc.Config {
	secret := ""
	if env := strings.TrimSpace(cfg.RPC.JWTSecretEnv); env != "" {
		secret = getenv(env)
	}
	seconds := func(v int) time.Duration { return time.Duration(v) * time.Second }
	return rpc.Config{
		MaxBodyBytes:      cfg.RPC.MaxBodyBytes,
		RateLimitPerSec:   cfg.RPC.RateLimitPerSec,
		RateLimitBurst:    cfg.RPC.RateLimitBurst,
		TrustedProxies:    cfg.RPC.TrustedProxies,
		JWTSecret:         secret,
		JWTIssuer:         cfg.RPC.JWTIssuer,
		JWTAudience:       cfg.RPC.JWTAudience,
		ReadHeaderTimeout: seconds(cfg.RPC.ReadHeaderTimeout),
		ReadTimeout:       seconds(cfg.RPC.ReadTimeout),
		WriteTimeout:      seconds(cfg.RPC.WriteTimeout),
		IdleTimeout:       seconds(cfg.RPC.IdleTimeout),
	}
}
