package main

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"finex/internal/amqp"
	"finex/internal/auth"
	"finex/internal/backend"
	"finex/internal/cache"
	"finex/internal/cli"
	"finex/internal/config"
	apphttp "finex/internal/http"
	"finex/internal/log"
)

const (
	shutdownTimeout = 30 * time.Second
	cacheSweepEvery = time.Minute
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", err)
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		cli.Fatal(logger, "Failed to create backend", err, "backend", cfg.DataBackend)
	}
	defer func() {
		if err := result.Close(); err != nil {
			logger.Warn("Backend cleanup failed", log.FieldError, err)
		}
	}()

	queries := cache.NewQueryCache(cfg.CacheSize, cfg.CacheTTL, logger)
	manager := cache.NewManager(logger)
	manager.Register(queries.Cleaner())
	manager.StartCleanup(cacheSweepEvery)
	defer manager.Stop()

	if cfg.AMQPURL != "" {
		go followLedgerEvents(ctx, cfg, queries, logger)
	}

	secret := cfg.SessionSecret
	if secret == "" {
		secret = uuid.NewString() + uuid.NewString()
		logger.Warn("SESSION_SECRET not set, sessions will not survive a restart")
	}

	srv, err := apphttp.NewServer(apphttp.ServerConfig{
		Addr:               ":" + cfg.Port,
		Backend:            cache.NewCachedBackend(result.Backend, queries),
		Sessions:           auth.NewSessions(secret, 0, cfg.SecureCookies),
		Cache:              queries,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
		Logger:             logger,
	})
	if err != nil {
		cli.Fatal(logger, "Failed to create HTTP server", err)
	}

	logger.Info("Starting finex server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := cli.RunServer(ctx, logger, srv, shutdownTimeout); err != nil {
		cli.Fatal(logger, "Server error", err, "port", cfg.Port)
	}
}

// followLedgerEvents drops cached queries when another replica or the
// backend service mutates a ledger. Each replica gets its own exclusive
// queue so every replica sees every event.
func followLedgerEvents(ctx context.Context, cfg *config.Config, queries *cache.QueryCache, logger *log.Logger) {
	client, err := amqp.NewClient(ctx, cfg.AMQPURL, cfg.AMQPExchange, "", logger)
	if err != nil {
		logger.Warn("Ledger event feed unavailable, relying on cache TTL", log.FieldError, err)
		return
	}
	defer client.Close()

	opts := amqp.ConsumeOptions{BindingKey: amqp.BindAllLedger, Exclusive: true}
	if err := client.ConsumeLedgerEvents(ctx, opts, queries.HandleLedgerEvent); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Ledger event feed stopped", log.FieldError, err)
	}
}
