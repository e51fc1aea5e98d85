package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"finex/internal/backend"
	"finex/internal/cli"
	"finex/internal/log"
	"finex/internal/middleware/security"
	"finex/internal/middleware/trace"
	"finex/internal/ports"
	"finex/internal/rpc"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentBackend)

	// the service is what remote UIs point at; it cannot itself be remote
	if cfg.DataBackend == backend.RemoteBackend.String() {
		cli.Fatal(logger, "Invalid backend configuration",
			errors.New("finex-backend needs DATA_BACKEND=memory or sqlite"), "backend", cfg.DataBackend)
	}

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

	if cfg.RPCToken == "" {
		logger.Warn("RPC_TOKEN not set, the backend accepts unauthenticated calls")
	}

	ops := cli.OpsHandler(func(ctx context.Context) error {
		if p, ok := result.Backend.(ports.Pinger); ok {
			return p.Ping(ctx)
		}
		return nil
	})

	mux := http.NewServeMux()
	mux.Handle("/", rpc.NewHandler(result.Backend, cfg.RPCToken, logger))
	mux.Handle("GET /readyz", ops)
	mux.Handle("GET /metrics", ops)

	detector := security.NewDetector(logger)
	for _, cidr := range cfg.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			cli.Fatal(logger, "Invalid trusted proxy", err)
		}
	}
	srv := &http.Server{
		Addr:              ":" + cfg.BackendPort,
		Handler:           trace.NewMiddleware(detector.ExtractClientIP, logger).Middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("Starting finex backend", "port", cfg.BackendPort, "backend", cfg.DataBackend)
	if err := cli.RunServer(ctx, logger, srv, shutdownTimeout); err != nil {
		cli.Fatal(logger, "Server error", err, "port", cfg.BackendPort)
	}
}
