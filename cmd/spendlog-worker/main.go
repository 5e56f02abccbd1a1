package main

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"spendlog/internal/amqp"
	"spendlog/internal/cli"
	"spendlog/internal/log"
	"spendlog/internal/services"
	"spendlog/internal/sheets"
	gsheet "spendlog/internal/sheets/google"
	mem "spendlog/internal/sheets/memory"
	"spendlog/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg := cli.LoadAndValidateConfig(cli.SetupLogger("info"))
	logger := cli.SetupLogger(cfg.LogLevel).WithComponent(log.ComponentWorker)
	logger.Info("Starting spendlog-worker", log.FieldOperation, log.OpStartup)

	st, backendRes := cli.OpenStore(context.Background(), logger, cfg)
	defer backendRes.Close()

	var exporter sheets.Exporter
	if cfg.ExportEnabled() {
		client, err := gsheet.New(context.Background(), gsheet.Config{
			SpreadsheetID:      cfg.GoogleSpreadsheetID,
			RecordsSheet:       cfg.GoogleSheetName,
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		}, logger)
		if err != nil {
			cli.Fatal(logger, "Failed to initialize Google Sheets client", err)
		}
		exporter = client
	} else {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, exporting to memory")
		exporter = mem.New()
	}

	exportWorker := worker.NewExportWorker(st, exporter, "Stats", logger)
	defer exportWorker.Close()

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("AMQP unavailable, relying on polling", log.FieldError, err)
		} else {
			amqpClient = client
			defer amqpClient.Close()
		}
	}

	poller := services.NewPollProcessor(exportWorker, services.PollProcessorConfig{
		PollInterval: cfg.ExportInterval,
		MaxRetries:   services.DefaultPollProcessorConfig().MaxRetries,
	}, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := poller.Stop(ctx); err != nil {
			logger.Warn("Poll processor did not stop cleanly", log.FieldError, err)
		}
	})

	// Export once so the sheets reflect the store before the first change.
	if err := exportWorker.Refresh(ctx); err != nil {
		logger.Error("Startup export failed", log.FieldError, err, log.FieldOperation, log.OpExport)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := poller.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		return nil
	})
	if amqpClient != nil {
		g.Go(func() error {
			err := amqpClient.ConsumeRecordChanges(gctx, exportWorker.HandleRecordChange)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		cli.Fatal(logger, "Worker stopped with error", err)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
