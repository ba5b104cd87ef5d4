package writer

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/AngelCh415/amazon-brain/internal/aggregate"
	"github.com/AngelCh415/amazon-brain/internal/models"
	"github.com/AngelCh415/amazon-brain/internal/store"
)

var week = time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)

func newTestWriter() (*Writer, *store.MemoryStore) {
	s := store.NewMemoryStore()
	return New(s, 5, slog.New(slog.NewTextHandler(io.Discard, nil))), s
}

func TestBrandSalesRemovesVAT(t *testing.T) {
	ctx := context.Background()
	w, s := newTestWriter()
	brand, _ := s.EnsureBrand(ctx, "Acme")

	if err := w.WriteBrandSales(ctx, brand.ID, week, aggregate.Metrics{Revenue: 150, Units: 3}, 2); err != nil {
		t.Fatal(err)
	}
	rows, _ := s.BrandWeeks(ctx, time.Time{})
	if len(rows) != 1 {
		t.Fatalf("rows = %d", len(rows))
	}
	r := rows[0]
	if r.Revenue != 150 || r.Orders != 2 || r.Units != 3 {
		t.Fatalf("row = %+v", r)
	}
	if math.Abs(r.RevenueExVat-142.857142857) > 1e-6 {
		t.Fatalf("revenue ex vat = %v", r.RevenueExVat)
	}
}

func TestBrandAdsUseStoredRevenue(t *testing.T) {
	ctx := context.Background()
	w, s := newTestWriter()
	brand, _ := s.EnsureBrand(ctx, "Acme")
	w.WriteBrandSales(ctx, brand.ID, week, aggregate.Metrics{Revenue: 1000}, 10)

	ok, err := w.ApplyBrandAds(ctx, brand.ID, week, aggregate.Metrics{Spend: 150, Sales: 600, Clicks: 40, Impressions: 2000})
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	rows, _ := s.BrandWeeks(ctx, time.Time{})
	if rows[0].Tacos != 15 || rows[0].Acos != 25 || rows[0].Revenue != 1000 {
		t.Fatalf("row = %+v", rows[0])
	}
}

func TestAdsWithoutSalesRowAreDeferred(t *testing.T) {
	ctx := context.Background()
	w, s := newTestWriter()
	brand, _ := s.EnsureBrand(ctx, "Acme")

	ok, err := w.ApplyBrandAds(ctx, brand.ID, week, aggregate.Metrics{Spend: 150})
	if err != nil || ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if rows, _ := s.BrandWeeks(ctx, time.Time{}); len(rows) != 0 {
		t.Fatalf("deferred write created %+v", rows)
	}

	sku := &models.SKU{SKU: "MUG-1", BrandID: brand.ID}
	s.SaveSKU(ctx, sku)
	if ok, _ := w.ApplySkuAds(ctx, sku.ID, week, aggregate.Metrics{Spend: 5}); ok {
		t.Fatal("sku ads without sales must defer")
	}
}

func TestSkuAdsRatios(t *testing.T) {
	ctx := context.Background()
	w, s := newTestWriter()
	brand, _ := s.EnsureBrand(ctx, "Acme")
	sku := &models.SKU{SKU: "MUG-1", BrandID: brand.ID}
	s.SaveSKU(ctx, sku)
	w.WriteSkuSales(ctx, sku.ID, week, aggregate.Metrics{Revenue: 200, Units: 4})

	ok, err := w.ApplySkuAds(ctx, sku.ID, week, aggregate.Metrics{Spend: 20, Sales: 80, Clicks: 10, Impressions: 500, Orders: 2})
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	r, _ := s.SkuWeeks(ctx, time.Time{})
	got := r[0]
	if got.Tacos != 10 || got.Acos != 25 || got.CTR != 2 || got.CPC != 2 || got.CVR != 20 {
		t.Fatalf("row = %+v", got)
	}
}

func TestStockDays(t *testing.T) {
	cases := map[int]float64{0: 0, -3: 0, 1: 0.5, 30: 15, 5000: 999}
	for qty, want := range cases {
		if got := StockDays(qty); got != want {
			t.Fatalf("StockDays(%d) = %v, want %v", qty, got, want)
		}
	}
}

func TestSearchTermWriteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	w, s := newTestWriter()
	tgt := Target{Key: "coffee mug", CampaignRef: "123"}
	m := aggregate.Metrics{Clicks: 4, Spend: 2, Sales: 8}
	w.WriteSearchTermWeek(ctx, tgt, week, m)
	w.WriteSearchTermWeek(ctx, tgt, week, m)
	rows, _ := s.SearchTermWeeks(ctx, time.Time{})
	if len(rows) != 1 || rows[0].Acos != 25 {
		t.Fatalf("rows = %+v", rows)
	}
}
