package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AngelCh415/amazon-brain/internal/models"
)

var week = time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)

func TestEnsureBrandIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	a, _ := s.EnsureBrand(ctx, "Acme")
	b, _ := s.EnsureBrand(ctx, "Acme")
	if a.ID != b.ID || a.Mode != models.ModeGrowth {
		t.Fatalf("a=%+v b=%+v", a, b)
	}
	all, _ := s.Brands(ctx)
	if len(all) != 1 {
		t.Fatalf("brands = %d", len(all))
	}
}

func TestBrandSalesUpsertKeepsOneRowAndAdColumns(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	brand, _ := s.EnsureBrand(ctx, "Acme")

	s.UpsertBrandSales(ctx, models.BrandWeek{BrandID: brand.ID, WeekStart: week, Revenue: 100, Units: 1, Orders: 1})
	if err := s.UpdateBrandAds(ctx, models.BrandWeek{BrandID: brand.ID, WeekStart: week, AdSpend: 15, Tacos: 15}); err != nil {
		t.Fatal(err)
	}
	s.UpsertBrandSales(ctx, models.BrandWeek{BrandID: brand.ID, WeekStart: week, Revenue: 150, Units: 2, Orders: 2})

	rows, _ := s.BrandWeeks(ctx, time.Time{})
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0].Revenue != 150 || rows[0].AdSpend != 15 {
		t.Fatalf("row = %+v", rows[0])
	}
}

func TestAdUpdatesNeedExistingRow(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	brand, _ := s.EnsureBrand(ctx, "Acme")
	if _, err := s.BrandWeekRevenue(ctx, brand.ID, week); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	if err := s.UpdateBrandAds(ctx, models.BrandWeek{BrandID: brand.ID, WeekStart: week}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	rows, _ := s.BrandWeeks(ctx, time.Time{})
	if len(rows) != 0 {
		t.Fatalf("ad update created rows: %+v", rows)
	}
}

func TestSkuStockAndSalesShareRow(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	brand, _ := s.EnsureBrand(ctx, "Acme")
	sku := &models.SKU{SKU: "MUG-1", ASIN: "B0MUG00001", BrandID: brand.ID}
	s.SaveSKU(ctx, sku)

	s.UpsertSkuStock(ctx, models.SkuWeek{SkuID: sku.ID, WeekStart: week, StockLevel: 30, StockDays: 15})
	s.UpsertSkuSales(ctx, models.SkuWeek{SkuID: sku.ID, WeekStart: week, Revenue: 40, Units: 2})

	rows, _ := s.SkuWeeks(ctx, week)
	if len(rows) != 1 || rows[0].StockLevel != 30 || rows[0].Revenue != 40 {
		t.Fatalf("rows = %+v", rows)
	}
	if rows, _ := s.SkuWeeks(ctx, week.AddDate(0, 0, 7)); len(rows) != 0 {
		t.Fatalf("since filter returned %+v", rows)
	}
}

func TestSaveSKUUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	a, _ := s.EnsureBrand(ctx, "Acme")
	b, _ := s.EnsureBrand(ctx, "Beta")
	first := &models.SKU{SKU: "X", BrandID: a.ID}
	s.SaveSKU(ctx, first)
	second := &models.SKU{SKU: "X", ASIN: "B0X", BrandID: b.ID}
	s.SaveSKU(ctx, second)
	if second.ID != first.ID {
		t.Fatal("update must keep the id")
	}
	got, _ := s.SKUBySKU(ctx, "X")
	if got.BrandID != b.ID || got.ASIN != "B0X" {
		t.Fatalf("sku = %+v", got)
	}
	if byAsin, err := s.SKUByASIN(ctx, "B0X"); err != nil || byAsin.ID != first.ID {
		t.Fatalf("by asin = %+v, %v", byAsin, err)
	}
}

func TestSearchTermUpsertByNaturalKey(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	w := models.SearchTermWeek{Term: "mug", CampaignRef: "unknown", WeekStart: week, Clicks: 3}
	s.UpsertSearchTermWeek(ctx, w)
	w.Clicks = 5
	s.UpsertSearchTermWeek(ctx, w)
	w.CampaignRef = "123"
	s.UpsertSearchTermWeek(ctx, w)
	rows, _ := s.SearchTermWeeks(ctx, time.Time{})
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
}

func TestAlertsLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	brand, _ := s.EnsureBrand(ctx, "Acme")
	s.CreateAlert(ctx, &models.Alert{Type: models.AlertTacos, EntityType: models.EntityBrand, EntityID: brand.ID})
	if ok, _ := s.OpenAlertExists(ctx, models.EntityBrand, brand.ID, models.AlertTacos); !ok {
		t.Fatal("expected open alert")
	}
	old := time.Now().AddDate(0, 0, -40)
	recent := time.Now().AddDate(0, 0, -2)
	s.CreateAlert(ctx, &models.Alert{Type: models.AlertStock, EntityType: models.EntitySKU, ResolvedAt: &old})
	s.CreateAlert(ctx, &models.Alert{Type: models.AlertStock, EntityType: models.EntitySKU, ResolvedAt: &recent})
	n, _ := s.DeleteResolvedAlerts(ctx, time.Now().AddDate(0, 0, -30))
	if n != 1 || len(s.Alerts()) != 2 {
		t.Fatalf("deleted %d, left %d", n, len(s.Alerts()))
	}
}
