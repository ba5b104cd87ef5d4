package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/AngelCh415/amazon-brain/internal/aggregate"
	"github.com/AngelCh415/amazon-brain/internal/models"
	"github.com/AngelCh415/amazon-brain/internal/store"
)

const maxStockDays = 999

type Repository interface {
	UpsertBrandSales(ctx context.Context, w models.BrandWeek) error
	BrandWeekRevenue(ctx context.Context, brandID uuid.UUID, week time.Time) (float64, error)
	UpdateBrandAds(ctx context.Context, w models.BrandWeek) error
	UpsertSkuSales(ctx context.Context, w models.SkuWeek) error
	UpsertSkuStock(ctx context.Context, w models.SkuWeek) error
	SkuWeekRevenue(ctx context.Context, skuID uuid.UUID, week time.Time) (float64, error)
	UpdateSkuAds(ctx context.Context, w models.SkuWeek) error
	UpsertCampaignWeek(ctx context.Context, w models.CampaignWeek) error
	UpsertSearchTermWeek(ctx context.Context, w models.SearchTermWeek) error
	UpsertTargetAsinWeek(ctx context.Context, w models.TargetAsinWeek) error
}

// Writer turns aggregated buckets into weekly rows. Each call is a single
// upsert so an interrupted run leaves every written week consistent.
type Writer struct {
	repo    Repository
	vatRate float64
	log     *slog.Logger
}

func New(repo Repository, vatRate float64, log *slog.Logger) *Writer {
	return &Writer{repo: repo, vatRate: vatRate, log: log}
}

func (w *Writer) WriteBrandSales(ctx context.Context, brandID uuid.UUID, week time.Time, m aggregate.Metrics, orders int) error {
	err := w.repo.UpsertBrandSales(ctx, models.BrandWeek{
		BrandID:      brandID,
		WeekStart:    week,
		Revenue:      m.Revenue,
		RevenueExVat: aggregate.RemoveVAT(m.Revenue, w.vatRate),
		Units:        m.Units,
		Orders:       orders,
	})
	if err != nil {
		return fmt.Errorf("brand sales %s: %w", aggregate.FormatDay(week), err)
	}
	return nil
}

func (w *Writer) WriteSkuSales(ctx context.Context, skuID uuid.UUID, week time.Time, m aggregate.Metrics) error {
	err := w.repo.UpsertSkuSales(ctx, models.SkuWeek{
		SkuID:        skuID,
		WeekStart:    week,
		Revenue:      m.Revenue,
		RevenueExVat: aggregate.RemoveVAT(m.Revenue, w.vatRate),
		Units:        m.Units,
	})
	if err != nil {
		return fmt.Errorf("sku sales %s: %w", aggregate.FormatDay(week), err)
	}
	return nil
}

// StockDays estimates days of cover at two units a day, capped at 999.
func StockDays(qty int) float64 {
	if qty <= 0 {
		return 0
	}
	return math.Min(float64(qty)/2, maxStockDays)
}

func (w *Writer) WriteSkuStock(ctx context.Context, skuID uuid.UUID, week time.Time, qty int) error {
	if qty < 0 {
		qty = 0
	}
	err := w.repo.UpsertSkuStock(ctx, models.SkuWeek{
		SkuID:      skuID,
		WeekStart:  week,
		StockLevel: qty,
		StockDays:  StockDays(qty),
	})
	if err != nil {
		return fmt.Errorf("sku stock %s: %w", aggregate.FormatDay(week), err)
	}
	return nil
}

// ApplyBrandAds writes ad metrics and ratios onto an existing brand week.
// It reports false when the week has no sales row yet; the caller counts
// that as deferred.
func (w *Writer) ApplyBrandAds(ctx context.Context, brandID uuid.UUID, week time.Time, m aggregate.Metrics) (bool, error) {
	revenue, err := w.repo.BrandWeekRevenue(ctx, brandID, week)
	if errors.Is(err, store.ErrNotFound) {
		w.log.Debug("brand ads deferred, no sales row", slog.String("brand_id", brandID.String()), slog.String("week", aggregate.FormatDay(week)))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("brand revenue %s: %w", aggregate.FormatDay(week), err)
	}
	err = w.repo.UpdateBrandAds(ctx, models.BrandWeek{
		BrandID:     brandID,
		WeekStart:   week,
		AdSpend:     m.Spend,
		AdSales:     m.Sales,
		Impressions: m.Impressions,
		Clicks:      m.Clicks,
		Tacos:       aggregate.TACoS(m.Spend, revenue),
		Acos:        aggregate.ACoS(m.Spend, m.Sales),
	})
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("brand ads %s: %w", aggregate.FormatDay(week), err)
	}
	return true, nil
}

func (w *Writer) ApplySkuAds(ctx context.Context, skuID uuid.UUID, week time.Time, m aggregate.Metrics) (bool, error) {
	revenue, err := w.repo.SkuWeekRevenue(ctx, skuID, week)
	if errors.Is(err, store.ErrNotFound) {
		w.log.Debug("sku ads deferred, no sales row", slog.String("sku_id", skuID.String()), slog.String("week", aggregate.FormatDay(week)))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sku revenue %s: %w", aggregate.FormatDay(week), err)
	}
	err = w.repo.UpdateSkuAds(ctx, models.SkuWeek{
		SkuID:       skuID,
		WeekStart:   week,
		AdSpend:     m.Spend,
		AdSales:     m.Sales,
		AdOrders:    m.Orders,
		Impressions: m.Impressions,
		Clicks:      m.Clicks,
		Tacos:       aggregate.TACoS(m.Spend, revenue),
		Acos:        aggregate.ACoS(m.Spend, m.Sales),
		CTR:         aggregate.CTR(m.Clicks, m.Impressions),
		CPC:         aggregate.CPC(m.Spend, m.Clicks),
		CVR:         aggregate.CVR(m.Orders, m.Clicks),
	})
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sku ads %s: %w", aggregate.FormatDay(week), err)
	}
	return true, nil
}

func (w *Writer) WriteCampaignWeek(ctx context.Context, campaignID uuid.UUID, week time.Time, m aggregate.Metrics) error {
	err := w.repo.UpsertCampaignWeek(ctx, models.CampaignWeek{
		CampaignID:  campaignID,
		WeekStart:   week,
		Impressions: m.Impressions,
		Clicks:      m.Clicks,
		Spend:       m.Spend,
		Sales:       m.Sales,
		Orders:      m.Orders,
		Acos:        aggregate.ACoS(m.Spend, m.Sales),
	})
	if err != nil {
		return fmt.Errorf("campaign week %s: %w", aggregate.FormatDay(week), err)
	}
	return nil
}

// Target fixes the non-metric columns of a search-term or target-ASIN row.
type Target struct {
	Key         string // search term or target ASIN
	CampaignRef string
	CampaignID  *uuid.UUID
	BrandID     uuid.UUID
	AdType      string
}

func (w *Writer) WriteSearchTermWeek(ctx context.Context, t Target, week time.Time, m aggregate.Metrics) error {
	err := w.repo.UpsertSearchTermWeek(ctx, models.SearchTermWeek{
		Term:        t.Key,
		CampaignRef: t.CampaignRef,
		CampaignID:  t.CampaignID,
		BrandID:     t.BrandID,
		WeekStart:   week,
		Impressions: m.Impressions,
		Clicks:      m.Clicks,
		Spend:       m.Spend,
		Sales:       m.Sales,
		Orders:      m.Orders,
		Acos:        aggregate.ACoS(m.Spend, m.Sales),
	})
	if err != nil {
		return fmt.Errorf("search term %q %s: %w", t.Key, aggregate.FormatDay(week), err)
	}
	return nil
}

func (w *Writer) WriteTargetAsinWeek(ctx context.Context, t Target, week time.Time, m aggregate.Metrics) error {
	err := w.repo.UpsertTargetAsinWeek(ctx, models.TargetAsinWeek{
		TargetAsin:  t.Key,
		CampaignRef: t.CampaignRef,
		AdType:      t.AdType,
		CampaignID:  t.CampaignID,
		BrandID:     t.BrandID,
		WeekStart:   week,
		Impressions: m.Impressions,
		Clicks:      m.Clicks,
		Spend:       m.Spend,
		Sales:       m.Sales,
		Orders:      m.Orders,
		Acos:        aggregate.ACoS(m.Spend, m.Sales),
	})
	if err != nil {
		return fmt.Errorf("target asin %s %s: %w", t.Key, aggregate.FormatDay(week), err)
	}
	return nil
}
