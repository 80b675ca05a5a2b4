package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"finbook/internal/amqp"
	"finbook/internal/config"
	"finbook/internal/export"
	"finbook/internal/insights"
	"finbook/internal/log"
	"finbook/internal/services"
	"finbook/internal/storage"
	"finbook/internal/store"
	"finbook/internal/store/memory"
	"finbook/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.Config{Component: log.ComponentWorker})
	log.SetDefault(logger)

	logger.Info("Starting finbook-worker", log.FieldOperation, log.OpStartup)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}

	var st store.Store
	switch cfg.DataBackend {
	case "sqlite":
		if err := storage.RunMigrations(cfg.SQLiteDBPath); err != nil {
			logger.Error("Failed to run migrations", log.FieldError, err.Error(), "path", cfg.SQLiteDBPath)
			os.Exit(1)
		}
		sqliteStore, err := storage.New(cfg.SQLiteDBPath)
		if err != nil {
			logger.Error("Failed to open SQLite store", log.FieldError, err.Error(), "path", cfg.SQLiteDBPath)
			os.Exit(1)
		}
		st = sqliteStore
	default:
		st = memory.New()
	}
	defer st.Close()

	advisor := insights.NewClient(cfg.AdvisorURL, cfg.AdvisorAPIKey, cfg.AdvisorTimeout,
		logger.WithComponent(log.ComponentAdvisor))
	if cfg.AdvisorURL == "" {
		logger.Info("Advisor disabled, using local recommendation rules")
	}

	// Sheets export is optional: without a spreadsheet id the worker keeps
	// refreshing recommendations but writes no reports.
	var reports export.ReportWriter
	if cfg.GoogleSpreadsheetID != "" {
		exporter, err := export.NewSheetsExporter(context.Background(), cfg.GoogleSpreadsheetID, cfg.GoogleSheetName)
		if err != nil {
			logger.Error("Failed to initialize sheets exporter", log.FieldError, err.Error())
			os.Exit(1)
		}
		reports = exporter
		logger.Info("Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	service := services.NewLedgerService(st, nil, logger.WithComponent(log.ComponentLedger))

	w := worker.NewInsightsWorker(service, st, advisor, reports, worker.Config{
		RefreshInterval: cfg.RefreshInterval,
		PropagationSpec: cfg.PropagationCron,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := w.Start(ctx); err != nil {
		logger.Error("Failed to start worker", log.FieldError, err.Error())
		os.Exit(1)
	}

	// The queue drives prompt refreshes; the ticker inside the worker covers
	// anything the broker loses.
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue,
			logger.WithComponent(log.ComponentAMQP).Logger)
		if err != nil {
			logger.Warn("AMQP unavailable, relying on periodic refresh only", log.FieldError, err.Error())
		} else {
			defer amqpClient.Close()
			go func() {
				if err := amqpClient.ConsumeWithReconnect(ctx, w.HandleSnapshotChanged); err != nil &&
					!errors.Is(err, context.Canceled) {
					logger.Error("Message consumption stopped", log.FieldError, err.Error())
				}
			}()
			logger.Info("Consuming snapshot change messages", "queue", cfg.AMQPQueue)
		}
	}

	<-ctx.Done()
	logger.Info("Shutdown signal received", log.FieldOperation, log.OpShutdown)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := w.Stop(shutdownCtx); err != nil {
		logger.Error("Worker shutdown error", log.FieldError, err.Error())
		os.Exit(1)
	}

	logger.Info("Worker stopped gracefully")
}
