package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"winterstorm/internal/amqp"
	"winterstorm/internal/backend"
	"winterstorm/internal/cli"
	"winterstorm/internal/config"
	applog "winterstorm/internal/log"
	"winterstorm/internal/metrics"
	"winterstorm/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentWorker)
	logger.Info("Starting winterstorm-worker")

	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateWorker)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// The worker always writes to Google Sheets, whatever backend the web
	// server uses.
	sheetsConfig := backend.Config{
		Type:                     backend.SheetsBackend,
		GoogleSpreadsheetID:      cfg.GoogleSpreadsheetID,
		GoogleSheetName:          cfg.ExportSheetName,
		GoogleServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		GoogleServiceAccountFile: cfg.GoogleServiceAccountFile,
		GoogleOAuthClientJSON:    cfg.GoogleOAuthClientJSON,
		GoogleOAuthClientFile:    cfg.GoogleOAuthClientFile,
		GoogleOAuthTokenJSON:     cfg.GoogleOAuthTokenJSON,
		GoogleOAuthTokenFile:     cfg.GoogleOAuthTokenFile,
	}

	sheetsClient, err := backend.CreateSheetsClient(context.Background(), sheetsConfig)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	m := metrics.New()
	exportWorker := worker.NewExportWorker(repo, sheetsClient, backend.SheetsBackend.String(), cfg.SyncBatchSize, m, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	// Jobs left behind while the worker was down go out before new messages.
	logger.Info("Performing startup sync check...")
	if err := exportWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", applog.FieldError, err.Error())
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		client, err := amqp.DialWithRetry(gctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			return err
		}
		defer client.Close()
		logger.Info("AMQP client connected", "queue", cfg.AMQPQueue)
		return client.ConsumeExportRequests(gctx, exportWorker.HandleExportMessage)
	})

	g.Go(func() error {
		return exportWorker.RunSweeper(gctx, cfg.SyncInterval)
	})

	g.Go(func() error {
		return exportWorker.RunCleanup(gctx, time.Hour, cfg.JobRetention)
	})

	if addr := os.Getenv("METRICS_ADDR"); addr != "" {
		srv := &http.Server{Addr: addr, Handler: m.Handler(), ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			logger.Info("Serving worker metrics", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", applog.FieldError, err.Error())
		repo.Close()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
