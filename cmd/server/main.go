package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AngelCh415/amazon-brain/internal/alerts"
	"github.com/AngelCh415/amazon-brain/internal/app"
	"github.com/AngelCh415/amazon-brain/internal/config"
	"github.com/AngelCh415/amazon-brain/internal/datasets"
	"github.com/AngelCh415/amazon-brain/internal/httpx"
	"github.com/AngelCh415/amazon-brain/internal/ingest"
	"github.com/AngelCh415/amazon-brain/internal/metrics"
	"github.com/AngelCh415/amazon-brain/internal/notify"
)

func main() {
	cfg := config.FromEnv()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := cfg.ValidateServer(); err != nil {
		logger.Error("invalid config", slog.String("err", err.Error()))
		os.Exit(1)
	}
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("store", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer closeStore()

	cal := app.Calendar(cfg, logger)
	orch := app.NewOrchestrator(cfg, st, cal, logger)
	sender := notify.NewSender(cfg.ResendAPIURL, cfg.ResendAPIKey, cfg.EmailFrom, cfg.EmailTo, cfg.HTTPTimeout)

	r := httpx.NewRouter(httpx.Deps{
		Log:    logger,
		Ready:  st.Ping,
		Sheets: datasets.NewService(st, cal),
		Sync: func(ctx context.Context, ds []ingest.Dataset, days int) (ingest.Summary, error) {
			return orch.WithDays(days).Run(ctx, ds)
		},
		Cron: alerts.NewService(st, sender, cal, logger),
		Keys: httpx.Keys{Sheets: cfg.SheetsAPIKey, Sync: cfg.SyncAPIKey, Cron: cfg.CronSecret},
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting server", slog.String("port", cfg.Port), slog.String("store", cfg.StoreDriver))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", slog.String("err", err.Error()))
		os.Exit(1)
	}
	logger.Info("server stopped")
}
