package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kazz187/urgentsync/internal/app"
	"github.com/kazz187/urgentsync/internal/config"
)

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}
	app.SetupLogger(env, os.Stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	a, err := app.New(ctx, env)
	if err != nil {
		slog.Error("failed to set up service", "error", err)
		os.Exit(1)
	}

	sched, err := a.Scheduler()
	if err != nil {
		slog.Error("failed to set up scheduler", "error", err)
		os.Exit(1)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		sched.Start(ctx)
	}()

	go func() {
		if err := a.Server.ListenAndServe(ctx); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	<-done
}
