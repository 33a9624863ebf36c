package cli

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	applog "budgetapp/internal/log"
)

func TestSetupLogger(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	logger := SetupLogger("debug")
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug to be enabled")
	}
	logger = SetupLogger("chatty")
	if logger.Enabled(context.Background(), slog.LevelDebug) || !logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("unknown level must fall back to info")
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("BUDGETAPP_CLI_TEST=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BUDGETAPP_CLI_TEST", "")
	os.Unsetenv("BUDGETAPP_CLI_TEST")

	LoadEnvFile(path)
	if got := os.Getenv("BUDGETAPP_CLI_TEST"); got != "from-file" {
		t.Errorf("got %q", got)
	}
	LoadEnvFile(filepath.Join(t.TempDir(), "missing.env"))
}

func TestShutdownRunsCleanup(t *testing.T) {
	logger := applog.New(applog.DefaultConfig())
	ran := false
	shutdown(logger, time.Second, func(ctx context.Context) { ran = true })
	if !ran {
		t.Fatal("cleanup did not run")
	}
}

func TestShutdownTimesOut(t *testing.T) {
	logger := applog.New(applog.DefaultConfig())
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	shutdown(logger, 50*time.Millisecond, func(ctx context.Context) { <-release })
	if time.Since(start) > time.Second {
		t.Fatal("shutdown did not honour its timeout")
	}
}
