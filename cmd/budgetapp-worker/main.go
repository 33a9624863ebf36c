package main

import (
	"context"
	"os"

	"budgetapp/internal/cli"
	"budgetapp/internal/config"
	applog "budgetapp/internal/log"
	gsheet "budgetapp/internal/sheets/google"
	"budgetapp/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Starting budgetapp-worker")

	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateWorker)
	res := cli.InitBackend(context.Background(), logger, cfg, true)

	mirror, err := gsheet.New(context.Background(), gsheet.Config{
		SpreadsheetID:     cfg.GoogleSpreadsheetID,
		TransactionsSheet: cfg.GoogleSheetName,
		AuditSheet:        cfg.GoogleAuditSheetName,
		CredentialsJSON:   cfg.GoogleServiceAccountJSON,
		CredentialsFile:   cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
		_ = res.Cleanup()
		os.Exit(1)
	}
	logger.Info("Google Sheets mirror initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	w := worker.NewMirrorWorker(res.Store, mirror)
	stopped := make(chan struct{})

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		select {
		case <-stopped:
		case <-ctx.Done():
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	})

	go func() {
		defer close(stopped)
		if err := w.Run(ctx, res.AMQP); err != nil {
			logger.Error("Event consumption failed", applog.FieldError, err)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
