package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AngelCh415/amazon-brain/internal/aggregate"
	"github.com/AngelCh415/amazon-brain/internal/amazon/ads"
	"github.com/AngelCh415/amazon-brain/internal/amazon/lwa"
	"github.com/AngelCh415/amazon-brain/internal/amazon/spapi"
	"github.com/AngelCh415/amazon-brain/internal/config"
	"github.com/AngelCh415/amazon-brain/internal/ingest"
	"github.com/AngelCh415/amazon-brain/internal/reports"
	"github.com/AngelCh415/amazon-brain/internal/store"
)

// OpenStore returns the configured store and a close func.
func OpenStore(ctx context.Context, cfg config.Config, log *slog.Logger) (store.Store, func() error, error) {
	if cfg.StoreDriver == "memory" {
		log.Warn("using in-memory store, data is lost on exit")
		return store.NewMemoryStore(), func() error { return nil }, nil
	}
	pg, err := store.Connect(ctx, cfg.DatabaseURL, 10)
	if err != nil {
		return nil, nil, err
	}
	if cfg.AutoMigrate {
		if err := pg.RunMigrations(ctx); err != nil {
			pg.Close()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
	}
	return pg, pg.Close, nil
}

func Calendar(cfg config.Config, log *slog.Logger) aggregate.Calendar {
	cal, err := aggregate.NewCalendar(cfg.Timezone)
	if err != nil {
		log.Warn("unknown timezone, weeks fall back to UTC", slog.String("tz", cfg.Timezone), slog.Any("err", err))
	}
	return cal
}

// NewOrchestrator builds the Amazon clients the credentials allow. A nil
// source makes the orchestrator refuse the datasets that need it.
func NewOrchestrator(cfg config.Config, st store.Store, cal aggregate.Calendar, log *slog.Logger) *ingest.Orchestrator {
	poll := reports.PollConfig{Interval: cfg.ReportPoll, MaxAttempts: cfg.ReportMaxAttempts}

	var seller ingest.SellerSource
	if cfg.SellerConfigured() {
		tokens := lwa.NewProvider(cfg.LWATokenURL, lwa.Credentials{
			ClientID:     cfg.LWAClientID,
			ClientSecret: cfg.LWAClientSecret,
			RefreshToken: cfg.RefreshToken,
		}, cfg.HTTPTimeout)
		seller = spapi.NewClient(spapi.Options{
			BaseURL:          cfg.SPAPIURL,
			SellerID:         cfg.SellerID,
			MarketplaceID:    cfg.MarketplaceID,
			Timeout:          cfg.HTTPTimeout,
			LookupsPerSecond: cfg.LookupsPerSecond,
		}, tokens, log.With(slog.String("api", "sp")))
	}

	var adsSrc ingest.AdsSource
	if cfg.AdsConfigured() {
		tokens := lwa.NewProvider(cfg.LWATokenURL, lwa.Credentials{
			ClientID:     cfg.AdsClientID,
			ClientSecret: cfg.AdsClientSecret,
			RefreshToken: cfg.AdsRefreshToken,
		}, cfg.HTTPTimeout)
		alog := log.With(slog.String("api", "ads"))
		base := cfg.AdsAPIURL
		if base == "" {
			base = ads.DefaultBaseURL
		}
		client := ads.NewClient(base, cfg.AdsClientID, cfg.AdsProfileID, tokens, cfg.HTTPTimeout, alog)
		rep := ads.NewReports(reports.NewClient(base, cfg.HTTPTimeout, client, poll, alog))
		rep.SearchTermPoll = reports.PollConfig{Interval: cfg.ReportPoll, MaxAttempts: cfg.SearchTermAttempts}
		adsSrc = &ads.API{Client: client, Reports: rep}
	}

	return ingest.New(st, seller, adsSrc, cal, ingest.Options{
		Days:       cfg.SyncDaysBack,
		AdsMaxDays: cfg.AdsMaxDays,
		VatRate:    cfg.VatRate,
		Chunks: ingest.Chunks{
			Campaign:   cfg.ChunkCampaign,
			SkuAds:     cfg.ChunkSkuAds,
			SearchTerm: cfg.ChunkSearchTerm,
			Targeting:  cfg.ChunkTargeting,
		},
	}, log)
}
