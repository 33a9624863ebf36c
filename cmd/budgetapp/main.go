package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"budgetapp/internal/cli"
	apphttp "budgetapp/internal/http"
	applog "budgetapp/internal/log"
	"budgetapp/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger, nil)

	res := cli.InitBackend(context.Background(), logger, cfg, false)
	events := res.Events()
	if events == nil {
		logger.Info("Ledger events disabled")
	}

	svc := apphttp.Services{
		Users:        services.NewUserService(res.Store),
		Accounts:     services.NewAccountService(res.Store, events),
		Transactions: services.NewTransactionService(res.Store, events),
		Budgets:      services.NewBudgetService(res.Store, events),
		Dashboard:    services.NewDashboardService(res.Store),
	}
	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		Logger:         logger.WithComponent(applog.ComponentHTTP),
		RequestTimeout: cfg.RequestTimeout,
	})
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = cfg.RequestTimeout + 5*time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	})

	logger.Info("Starting budgetapp server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
