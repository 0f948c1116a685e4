package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"finance/internal/amqp"
	"finance/internal/cli"
	"finance/internal/config"
	"finance/internal/core"
	"finance/internal/log"
	"finance/internal/metrics"
	gsheet "finance/internal/sheets/google"
	"finance/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadConfig((*config.Config).ValidateWorker)
	logger := cli.SetupLogger(cfg).WithComponent(log.ComponentWorker)

	logger.Info("Starting finance-worker", log.FieldOperation, log.OpStartup)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	sheetsClient, err := gsheet.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client",
			log.FieldErrorType, log.ErrorTypeConfiguration, log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized",
		"spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client",
			log.FieldErrorType, log.ErrorTypeNetwork, log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	m := metrics.New()
	if cfg.WorkerMetricsPort != "" {
		metricsSrv := m.NewServer(":" + cfg.WorkerMetricsPort)
		go func() {
			logger.Info("Serving worker metrics", "addr", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server error", log.FieldError, err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	mirror := worker.NewMirrorWorker(repo, sheetsClient, m, logger)

	// Rows for events lost while the worker was down.
	if _, err := mirror.ResyncPeriod(ctx, core.PeriodOf(time.Now())); err != nil {
		logger.Error("Startup resync failed", log.FieldOperation, log.OpSync, log.FieldError, err)
	}

	if err := amqpClient.Run(ctx, mirror.Handle); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully", log.FieldOperation, log.OpShutdown)
}
