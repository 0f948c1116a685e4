package main

import (
	"context"
	"os"
	"time"

	"finance/internal/amqp"
	"finance/internal/cli"
	"finance/internal/config"
	apphttp "finance/internal/http"
	"finance/internal/log"
	"finance/internal/metrics"
	"finance/internal/report"
	"finance/internal/services"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadConfig((*config.Config).Validate)
	logger := cli.SetupLogger(cfg)

	logger.Info("Starting finance server",
		log.FieldOperation, log.OpStartup,
		"port", cfg.Port,
		"events_enabled", cfg.EventsEnabled())

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	m := metrics.New(apphttp.Routes...)

	var publisher services.EventPublisher
	if cfg.EventsEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client",
				log.FieldErrorType, log.ErrorTypeNetwork, log.FieldError, err)
			os.Exit(1)
		}
		publisher = client
		logger.Info("Record events enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP_URL not set, record events disabled")
	}

	records := services.NewRecordService(repo, publisher, m, logger)
	defer func() {
		if err := records.Close(); err != nil {
			logger.Error("Failed to release resources", log.FieldError, err)
		}
	}()

	srv := apphttp.NewServer(cfg, apphttp.Dependencies{
		Records:  records,
		Reports:  report.NewEngine(repo),
		Exporter: report.NewExporter(repo),
		Health:   repo,
		Metrics:  m,
	}, logger)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", log.FieldOperation, log.OpShutdown, log.FieldError, err)
		return
	}
	logger.Info("Server stopped gracefully", log.FieldOperation, log.OpShutdown)
}
