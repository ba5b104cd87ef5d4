package datasets

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/AngelCh415/amazon-brain/internal/aggregate"
	"github.com/AngelCh415/amazon-brain/internal/models"
	"github.com/AngelCh415/amazon-brain/internal/store"
)

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func seed(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	acme, _ := st.EnsureBrand(ctx, "Acme")
	zeta, _ := st.EnsureBrand(ctx, "Zeta")

	for _, w := range []models.BrandWeek{
		{BrandID: acme.ID, WeekStart: day("2024-02-05"), Revenue: 1000, RevenueExVat: 952.38, Orders: 10},
		{BrandID: zeta.ID, WeekStart: day("2024-02-05"), Revenue: 200},
		{BrandID: acme.ID, WeekStart: day("2024-01-29"), Revenue: 800},
		{BrandID: acme.ID, WeekStart: day("2023-10-02"), Revenue: 1},
	} {
		if err := st.UpsertBrandSales(ctx, w); err != nil {
			t.Fatal(err)
		}
	}

	sku := models.SKU{SKU: "ACME-1", ASIN: "B0TESTASIN1", Title: "Widget", BrandID: acme.ID}
	_ = st.SaveSKU(ctx, &sku)
	_ = st.UpsertSkuStock(ctx, models.SkuWeek{SkuID: sku.ID, WeekStart: day("2024-02-05"), StockLevel: 40, StockDays: 20})

	camp := models.Campaign{CampaignID: "111", BrandID: acme.ID, Name: "Acme Exact", Type: "SP", State: "enabled"}
	_ = st.SaveCampaign(ctx, &camp)
	_ = st.UpsertCampaignWeek(ctx, models.CampaignWeek{CampaignID: camp.ID, WeekStart: day("2024-02-05"), Impressions: 300, Clicks: 7, Spend: 10})
	_ = st.UpsertSearchTermWeek(ctx, models.SearchTermWeek{Term: "widget", CampaignRef: "111", CampaignID: &camp.ID, BrandID: acme.ID, WeekStart: day("2024-02-05"), Clicks: 8, Orders: 2})

	svc := NewService(st, aggregate.Calendar{})
	svc.now = func() time.Time { return time.Date(2024, 2, 11, 12, 0, 0, 0, time.UTC) }
	return svc, st
}

func TestBrandWeekWindowAndOrder(t *testing.T) {
	svc, _ := seed(t)
	q, err := ParseQuery(url.Values{"weeks": {"2"}})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := svc.Get(context.Background(), "brand-week", q)
	if err != nil {
		t.Fatal(err)
	}
	rows := resp.Data.([]BrandWeekRow)
	if resp.Count != 3 || len(rows) != 3 {
		t.Fatalf("count = %d, rows = %+v", resp.Count, rows)
	}
	want := []struct{ week, brand string }{
		{"2024-02-05", "Acme"}, {"2024-02-05", "Zeta"}, {"2024-01-29", "Acme"},
	}
	for i, w := range want {
		if rows[i].WeekStart != w.week || rows[i].BrandName != w.brand {
			t.Fatalf("row %d = %s/%s, want %s/%s", i, rows[i].WeekStart, rows[i].BrandName, w.week, w.brand)
		}
	}
	if rows[0].TacosTarget != 15 || rows[0].Mode != models.ModeGrowth {
		t.Fatalf("brand targets not joined: %+v", rows[0])
	}
}

func TestBrandFilterAndPagination(t *testing.T) {
	svc, _ := seed(t)
	q, _ := ParseQuery(url.Values{"brand": {" acme "}, "limit": {"1"}, "offset": {"1"}})
	resp, err := svc.Get(context.Background(), "brand-week", q)
	if err != nil {
		t.Fatal(err)
	}
	rows := resp.Data.([]BrandWeekRow)
	if len(rows) != 1 || rows[0].WeekStart != "2024-01-29" {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestJoinedDatasets(t *testing.T) {
	svc, _ := seed(t)
	ctx := context.Background()
	q, _ := ParseQuery(url.Values{})

	resp, err := svc.Get(ctx, "asin-week", q)
	if err != nil {
		t.Fatal(err)
	}
	asin := resp.Data.([]AsinWeekRow)
	if len(asin) != 1 || asin[0].BrandName != "Acme" || asin[0].StockDays != 20 {
		t.Fatalf("asin-week = %+v", asin)
	}

	resp, _ = svc.Get(ctx, "campaign-week", q)
	cw := resp.Data.([]CampaignWeekRow)
	if len(cw) != 1 || cw[0].CampaignName != "Acme Exact" || cw[0].CTR != 2.33 || cw[0].CPC != 1.43 {
		t.Fatalf("campaign-week = %+v", cw)
	}

	resp, _ = svc.Get(ctx, "searchterm-week", q)
	st := resp.Data.([]SearchTermWeekRow)
	if len(st) != 1 || st[0].CampaignName != "Acme Exact" || st[0].CVR != 25 {
		t.Fatalf("searchterm-week = %+v", st)
	}

	resp, _ = svc.Get(ctx, "campaigns", q)
	if c := resp.Data.([]CampaignRow); len(c) != 1 || c[0].BrandName != "Acme" {
		t.Fatalf("campaigns = %+v", c)
	}

	resp, _ = svc.Get(ctx, "config", q)
	if resp.Count != 1 || resp.Data.(models.AccountSettings).Currency != "AED" {
		t.Fatalf("config = %+v", resp)
	}
}

func TestUnknownDataset(t *testing.T) {
	svc, _ := seed(t)
	_, err := svc.Get(context.Background(), "decisions", Query{Weeks: 12})
	if !errors.Is(err, ErrUnknownDataset) {
		t.Fatalf("err = %v", err)
	}
}

func TestParseQueryRejectsBadWeeks(t *testing.T) {
	if _, err := ParseQuery(url.Values{"weeks": {"0"}}); err == nil {
		t.Fatal("weeks=0 must fail")
	}
	q, err := ParseQuery(url.Values{"weeks": {"abc"}})
	if err != nil || q.Weeks != 12 {
		t.Fatalf("q = %+v, err = %v", q, err)
	}
}

func TestWriteXLSX(t *testing.T) {
	svc, _ := seed(t)
	resp, err := svc.Get(context.Background(), "brands", Query{Weeks: 12})
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, resp); err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := f.GetRows("brands")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || rows[0][1] != "name" || rows[1][1] != "Acme" || rows[2][1] != "Zeta" {
		t.Fatalf("rows = %v", rows)
	}
}
