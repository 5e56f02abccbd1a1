package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"spendlog/internal/amqp"
	"spendlog/internal/cli"
	apphttp "spendlog/internal/http"
	"spendlog/internal/log"
	"spendlog/internal/services"
)

func main() {
	cli.LoadEnvFile()

	cfg := cli.LoadAndValidateConfig(cli.SetupLogger("info"))
	logger := cli.SetupLogger(cfg.LogLevel)
	ctx := context.Background()

	st, backendRes := cli.OpenStore(ctx, logger, cfg)

	// AMQP is optional: without it changes are only picked up by polling.
	var publisher services.ChangePublisher
	closers := []func() error{backendRes.Close}
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("AMQP unavailable, change messages disabled", log.FieldError, err)
		} else {
			publisher = client
			closers = append(closers, client.Close)
		}
	}

	svc := services.NewRecordService(st, publisher, logger, closers...)

	srv := apphttp.NewServer(":"+cfg.Port, svc,
		apphttp.WithLogger(logger),
		apphttp.WithHighlightLimit(cfg.HighlightLimit),
		apphttp.WithCurrency(cfg.Currency))
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if err := svc.Close(); err != nil {
			logger.Error("Failed to release resources", log.FieldError, err)
		}
	})

	logger.Info("Starting spendlog server",
		"port", cfg.Port,
		log.FieldBackend, cfg.DataBackend,
		log.FieldRecords, len(svc.ListRecords()),
		log.FieldOperation, log.OpStartup)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cli.Fatal(logger, "Server error", err)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
