package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"finex/internal/amqp"
	"finex/internal/cli"
	"finex/internal/log"
	gsheet "finex/internal/sheets/google"
	"finex/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentWorker)

	if err := cfg.ValidateExport(); err != nil {
		cli.Fatal(logger, "Export configuration validation failed", err)
	}

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	exporter, err := gsheet.New(ctx, gsheet.Options{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
		Logger:          logger,
	})
	if err != nil {
		cli.Fatal(logger, "Failed to initialize Google Sheets client", err)
	}

	client, err := amqp.NewClient(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize AMQP client", err)
	}
	defer client.Close()

	exports := worker.NewExportWorker(exporter, logger)

	// the worker has no UI; PORT only serves health and metrics
	ops := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           cli.OpsHandler(nil),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Starting finex-worker",
		"queue", cfg.AMQPQueue,
		"exchange", cfg.AMQPExchange,
		"spreadsheet_id", cfg.GoogleSpreadsheetID)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := client.Consume(gctx, amqp.BindTransactions, exports.HandleEvent)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return cli.RunServer(gctx, logger, ops, shutdownTimeout)
	})

	if err := g.Wait(); err != nil {
		cli.Fatal(logger, "Worker stopped", err)
	}
	logger.Info("Worker shutdown complete")
}
