package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AngelCh415/amazon-brain/internal/aggregate"
	"github.com/AngelCh415/amazon-brain/internal/amazon/spapi"
	"github.com/AngelCh415/amazon-brain/internal/models"
	"github.com/AngelCh415/amazon-brain/internal/reports"
	"github.com/AngelCh415/amazon-brain/internal/store"
)

var (
	now  = time.Date(2024, 2, 11, 12, 0, 0, 0, time.UTC)
	week = time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)
)

type fakeSeller struct {
	listings  []models.Listing
	brands    map[string]string
	lines     []models.OrderLine
	inventory []models.InventoryItem
	ordersErr error
	lookups   int32
}

func (f *fakeSeller) ActiveListings(context.Context) ([]models.Listing, error) {
	return f.listings, nil
}

func (f *fakeSeller) ListingBrand(_ context.Context, sku string) string {
	atomic.AddInt32(&f.lookups, 1)
	if b, ok := f.brands[sku]; ok {
		return b
	}
	return models.BrandUnknown
}

func (f *fakeSeller) Orders(context.Context, time.Time) ([]models.OrderLine, error) {
	return f.lines, f.ordersErr
}

func (f *fakeSeller) FBAInventory(context.Context) ([]models.InventoryItem, error) {
	return f.inventory, nil
}

// fakeAds serves each report row only to the chunk containing its date.
type fakeAds struct {
	campaigns map[string][]models.CampaignInfo
	listErr   error
	perf      []models.CampaignPerformanceRow
	products  []models.AdvertisedProductRow
	terms     []models.SearchTermRow
	sp, sd    []models.TargetingRow
}

func inRange(date string, dr reports.DateRange) bool {
	return date >= dr.StartDate() && date <= dr.EndDate()
}

func filter[T any](rows []T, dr reports.DateRange, date func(T) string) []T {
	var out []T
	for _, r := range rows {
		if inRange(date(r), dr) {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeAds) ListCampaigns(_ context.Context, adType string) ([]models.CampaignInfo, error) {
	return f.campaigns[adType], f.listErr
}

func (f *fakeAds) CampaignPerformance(_ context.Context, dr reports.DateRange) []models.CampaignPerformanceRow {
	return filter(f.perf, dr, func(r models.CampaignPerformanceRow) string { return r.Date })
}

func (f *fakeAds) AdvertisedProducts(_ context.Context, dr reports.DateRange) []models.AdvertisedProductRow {
	return filter(f.products, dr, func(r models.AdvertisedProductRow) string { return r.Date })
}

func (f *fakeAds) SearchTerms(_ context.Context, dr reports.DateRange) []models.SearchTermRow {
	return filter(f.terms, dr, func(r models.SearchTermRow) string { return r.Date })
}

func (f *fakeAds) SPTargeting(_ context.Context, dr reports.DateRange) []models.TargetingRow {
	return filter(f.sp, dr, func(r models.TargetingRow) string { return r.Date })
}

func (f *fakeAds) SDTargeting(_ context.Context, dr reports.DateRange) []models.TargetingRow {
	return filter(f.sd, dr, func(r models.TargetingRow) string { return r.Date })
}

func newTestOrchestrator(s *store.MemoryStore, seller SellerSource, ads AdsSource) *Orchestrator {
	o := New(s, seller, ads, aggregate.Calendar{}, Options{Days: 90, VatRate: 5}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	o.now = func() time.Time { return now }
	return o
}

func brandWeek(t *testing.T, s *store.MemoryStore, name string) models.BrandWeek {
	t.Helper()
	ctx := context.Background()
	rows, _ := s.BrandWeeks(ctx, time.Time{})
	for _, r := range rows {
		b, _ := s.BrandByID(ctx, r.BrandID)
		if b.Name == name && r.WeekStart.Equal(week) {
			return r
		}
	}
	t.Fatalf("no brand week for %s in %+v", name, rows)
	return models.BrandWeek{}
}

func mugSeller() *fakeSeller {
	return &fakeSeller{
		listings: []models.Listing{{SKU: "MUG-1", ASIN: "B0MUG00001", Name: "Mug", Quantity: 40}},
		brands:   map[string]string{"MUG-1": "Acme"},
	}
}

func TestOrdersAggregateByBrandWeek(t *testing.T) {
	s := store.NewMemoryStore()
	seller := mugSeller()
	seller.lines = []models.OrderLine{
		{OrderID: "A", PurchaseDate: time.Date(2024, 2, 7, 9, 0, 0, 0, time.UTC), SKU: "MUG-1", ASIN: "B0MUG00001", Quantity: 1, ItemPrice: 100},
		{OrderID: "B", PurchaseDate: time.Date(2024, 2, 11, 18, 0, 0, 0, time.UTC), SKU: "MUG-1", ASIN: "B0MUG00001", Quantity: 2, ItemPrice: 50},
	}
	sum, err := newTestOrchestrator(s, seller, nil).Run(context.Background(), []Dataset{Products, Orders})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Failed() != 0 {
		t.Fatalf("summary = %+v", sum)
	}

	bw := brandWeek(t, s, "Acme")
	if bw.Revenue != 150 || bw.Orders != 2 || bw.Units != 3 {
		t.Fatalf("brand week = %+v", bw)
	}
	if math.Abs(bw.RevenueExVat-142.857142857) > 1e-6 {
		t.Fatalf("revenue ex vat = %v", bw.RevenueExVat)
	}
	skus, _ := s.SkuWeeks(context.Background(), time.Time{})
	if len(skus) != 1 || skus[0].Revenue != 150 || skus[0].StockLevel != 40 || skus[0].StockDays != 20 {
		t.Fatalf("sku weeks = %+v", skus)
	}
	if seller.lookups != 1 {
		t.Fatalf("brand lookups = %d, want 1 (cached after products)", seller.lookups)
	}
	if st, _ := s.Settings(context.Background()); st.LastSyncAt == nil {
		t.Fatal("last sync not recorded")
	}
}

func TestAdsComputeTacosAndCountUnmapped(t *testing.T) {
	s := store.NewMemoryStore()
	seller := mugSeller()
	seller.lines = []models.OrderLine{
		{OrderID: "A", PurchaseDate: time.Date(2024, 2, 7, 9, 0, 0, 0, time.UTC), SKU: "MUG-1", ASIN: "B0MUG00001", Quantity: 10, ItemPrice: 1000},
	}
	ads := &fakeAds{
		campaigns: map[string][]models.CampaignInfo{
			"SP": {{CampaignID: "111", Name: "SP - B0MUG00001 - exact", Type: "SP", State: "enabled"}},
		},
		perf: []models.CampaignPerformanceRow{
			{Date: "2024-02-07", CampaignID: "111", Impressions: 2000, Clicks: 40, Cost: 150, Sales14d: 600},
			{Date: "2024-02-08", CampaignID: "999", Impressions: 10, Clicks: 1, Cost: 5, Sales14d: 0},
		},
		products: []models.AdvertisedProductRow{
			{Date: "2024-02-07", AdvertisedAsin: "B0MUG00001", Impressions: 2000, Clicks: 40, Cost: 150, Sales14d: 600, Purchases14d: 8},
		},
	}

	sum, err := newTestOrchestrator(s, seller, ads).Run(context.Background(), []Dataset{Products, Orders, Ads})
	if err != nil {
		t.Fatal(err)
	}
	res, _ := sum.Result(Ads)
	if res.Status != StatusDone || res.Unmapped != 1 || res.Deferred != 0 {
		t.Fatalf("ads result = %+v", res)
	}

	bw := brandWeek(t, s, "Acme")
	if bw.Tacos != 15 || bw.Acos != 25 || bw.AdSpend != 150 {
		t.Fatalf("brand week = %+v", bw)
	}
	cws, _ := s.CampaignWeeks(context.Background(), time.Time{})
	if len(cws) != 1 || cws[0].Spend != 150 {
		t.Fatalf("campaign weeks = %+v", cws)
	}
	skus, _ := s.SkuWeeks(context.Background(), time.Time{})
	if skus[0].Tacos != 15 || skus[0].CVR != 20 {
		t.Fatalf("sku week = %+v", skus[0])
	}
	c, _ := s.CampaignByExternalID(context.Background(), "111")
	b, _ := s.BrandByID(context.Background(), c.BrandID)
	if b.Name != "Acme" {
		t.Fatalf("campaign brand = %q", b.Name)
	}
}

func TestAdsWithoutSalesAreDeferred(t *testing.T) {
	s := store.NewMemoryStore()
	ads := &fakeAds{
		campaigns: map[string][]models.CampaignInfo{"SD": {{CampaignID: "5", Name: "display", Type: "SD"}}},
		perf:      []models.CampaignPerformanceRow{{Date: "2024-02-09", CampaignID: "5", Cost: 150}},
	}
	sum, _ := newTestOrchestrator(s, nil, ads).Run(context.Background(), []Dataset{Ads})
	res, _ := sum.Result(Ads)
	if res.Deferred != 1 || res.Status != StatusDone {
		t.Fatalf("ads result = %+v", res)
	}
	if rows, _ := s.BrandWeeks(context.Background(), time.Time{}); len(rows) != 0 {
		t.Fatalf("ads created brand weeks: %+v", rows)
	}
}

func TestFailedDatasetDoesNotStopRun(t *testing.T) {
	s := store.NewMemoryStore()
	seller := &fakeSeller{ordersErr: errors.New("throttled")}
	ads := &fakeAds{listErr: errors.New("ads down")}
	sum, err := newTestOrchestrator(s, seller, ads).Run(context.Background(), []Dataset{Orders, Ads, SearchTerms})
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.Results) != 3 || sum.Failed() != 2 {
		t.Fatalf("summary = %+v", sum)
	}
	if res, _ := sum.Result(SearchTerms); res.Status != StatusDone {
		t.Fatalf("search terms = %+v", res)
	}
}

type fixedToken string

func (f fixedToken) Token(context.Context) (string, error) { return string(f), nil }

func TestFailedOrdersPageKeepsStoredWeek(t *testing.T) {
	var throttle atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/orders/v0/orders":
			if r.URL.Query().Get("NextToken") == "" {
				w.Write([]byte(`{"payload":{"Orders":[{"AmazonOrderId":"A","PurchaseDate":"2024-02-07T10:00:00Z"}],"NextToken":"p2"}}`))
				return
			}
			if throttle.Load() {
				http.Error(w, "quota exceeded", http.StatusTooManyRequests)
				return
			}
			w.Write([]byte(`{"payload":{"Orders":[{"AmazonOrderId":"B","PurchaseDate":"2024-02-08T10:00:00Z"}]}}`))
		case "/orders/v0/orders/A/orderItems":
			w.Write([]byte(`{"payload":{"OrderItems":[{"SellerSKU":"MUG-1","ASIN":"B0MUG00001","QuantityOrdered":1,"ItemPrice":{"Amount":"100.00"}}]}}`))
		case "/orders/v0/orders/B/orderItems":
			w.Write([]byte(`{"payload":{"OrderItems":[{"SellerSKU":"MUG-1","ASIN":"B0MUG00001","QuantityOrdered":1,"ItemPrice":{"Amount":"50.00"}}]}}`))
		case "/listings/2021-08-01/items/S1/MUG-1":
			w.Write([]byte(`{"attributes":{"brand":[{"value":"Acme"}]}}`))
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	seller := spapi.NewClient(spapi.Options{
		BaseURL:          srv.URL,
		SellerID:         "S1",
		MarketplaceID:    "M1",
		Timeout:          2 * time.Second,
		LookupsPerSecond: 1000,
	}, fixedToken("tok"), log)
	s := store.NewMemoryStore()

	sum, err := newTestOrchestrator(s, seller, nil).Run(context.Background(), []Dataset{Orders})
	if err != nil || sum.Failed() != 0 {
		t.Fatalf("first run: %+v, %v", sum, err)
	}
	if bw := brandWeek(t, s, "Acme"); bw.Revenue != 150 {
		t.Fatalf("first run revenue = %v", bw.Revenue)
	}

	throttle.Store(true)
	sum, err = newTestOrchestrator(s, seller, nil).Run(context.Background(), []Dataset{Orders})
	if err != nil {
		t.Fatal(err)
	}
	if res, _ := sum.Result(Orders); res.Status != StatusFailed || res.Rows != 0 {
		t.Fatalf("second run = %+v", res)
	}
	if bw := brandWeek(t, s, "Acme"); bw.Revenue != 150 || bw.Orders != 2 {
		t.Fatalf("stored week changed: %+v", bw)
	}
}

type factTables struct {
	brands, skus, campaigns int
	brandWeeks              []models.BrandWeek
	skuWeeks                []models.SkuWeek
	campaignWeeks           []models.CampaignWeek
}

func snapshot(t *testing.T, s *store.MemoryStore) factTables {
	t.Helper()
	ctx := context.Background()
	var f factTables
	brands, _ := s.Brands(ctx)
	skus, _ := s.SKUs(ctx)
	campaigns, _ := s.Campaigns(ctx)
	f.brands, f.skus, f.campaigns = len(brands), len(skus), len(campaigns)
	f.brandWeeks, _ = s.BrandWeeks(ctx, time.Time{})
	f.skuWeeks, _ = s.SkuWeeks(ctx, time.Time{})
	f.campaignWeeks, _ = s.CampaignWeeks(ctx, time.Time{})
	for i := range f.brandWeeks {
		f.brandWeeks[i].UpdatedAt = time.Time{}
	}
	for i := range f.skuWeeks {
		f.skuWeeks[i].UpdatedAt = time.Time{}
	}
	for i := range f.campaignWeeks {
		f.campaignWeeks[i].UpdatedAt = time.Time{}
	}
	return f
}

func TestRunTwiceIsIdempotent(t *testing.T) {
	s := store.NewMemoryStore()
	seller := mugSeller()
	seller.lines = []models.OrderLine{
		{OrderID: "A", PurchaseDate: time.Date(2024, 2, 7, 9, 0, 0, 0, time.UTC), SKU: "MUG-1", ASIN: "B0MUG00001", Quantity: 10, ItemPrice: 1000},
		{OrderID: "B", PurchaseDate: time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC), SKU: "MUG-1", ASIN: "B0MUG00001", Quantity: 1, ItemPrice: 80},
	}
	ads := &fakeAds{
		campaigns: map[string][]models.CampaignInfo{
			"SP": {{CampaignID: "111", Name: "SP - B0MUG00001 - exact", Type: "SP", State: "enabled"}},
		},
		perf: []models.CampaignPerformanceRow{
			{Date: "2024-02-07", CampaignID: "111", Impressions: 2000, Clicks: 40, Cost: 150, Sales14d: 600},
			{Date: "2024-01-31", CampaignID: "111", Impressions: 100, Clicks: 4, Cost: 8, Sales14d: 80},
		},
		products: []models.AdvertisedProductRow{
			{Date: "2024-02-07", AdvertisedAsin: "B0MUG00001", Impressions: 2000, Clicks: 40, Cost: 150, Sales14d: 600, Purchases14d: 8},
		},
	}
	selection := []Dataset{Products, Orders, Ads}

	if _, err := newTestOrchestrator(s, seller, ads).Run(context.Background(), selection); err != nil {
		t.Fatal(err)
	}
	first := snapshot(t, s)
	if len(first.brandWeeks) != 2 || len(first.skuWeeks) != 2 || len(first.campaignWeeks) != 2 {
		t.Fatalf("first run = %+v", first)
	}

	sum, err := newTestOrchestrator(s, seller, ads).Run(context.Background(), selection)
	if err != nil || sum.Failed() != 0 {
		t.Fatalf("second run: %+v, %v", sum, err)
	}
	if second := snapshot(t, s); !reflect.DeepEqual(first, second) {
		t.Fatalf("second run changed tables:\nfirst  %+v\nsecond %+v", first, second)
	}
}

func TestMissingCredentialsAbortBeforeAnyDataset(t *testing.T) {
	s := store.NewMemoryStore()
	_, err := newTestOrchestrator(s, mugSeller(), nil).Run(context.Background(), []Dataset{Products, Ads})
	if !errors.Is(err, ErrMissingSource) {
		t.Fatalf("err = %v", err)
	}
	if skus, _ := s.SKUs(context.Background()); len(skus) != 0 {
		t.Fatal("products ran despite missing ads credentials")
	}
	if st, _ := s.Settings(context.Background()); st.LastSyncAt != nil {
		t.Fatal("aborted run touched last sync")
	}
}

func TestTargetingKeepsAsinTargets(t *testing.T) {
	s := store.NewMemoryStore()
	ads := &fakeAds{
		sp: []models.TargetingRow{
			{Date: "2024-02-06", CampaignID: "1", Targeting: `asin="b0target01"`, Clicks: 3, Cost: 2, Sales14d: 8, Purchases14d: 1},
			{Date: "2024-02-07", CampaignID: "1", Targeting: `asin="b0target01"`, Clicks: 1, Cost: 1, Sales14d: 4, Purchases14d: 1},
			{Date: "2024-02-07", CampaignID: "1", Targeting: "coffee mug", Clicks: 9},
		},
		sd: []models.TargetingRow{
			{Date: "2024-02-07", CampaignID: "2", TargetingExpression: `asin="B0TARGET01"`, Clicks: 2, Cost: 1, Sales: 2, Purchases: 1},
		},
	}
	sum, _ := newTestOrchestrator(s, nil, ads).Run(context.Background(), []Dataset{Targeting})
	res, _ := sum.Result(Targeting)
	if res.Rows != 2 {
		t.Fatalf("targeting result = %+v", res)
	}
	rows, _ := s.TargetAsinWeeks(context.Background(), time.Time{})
	for _, r := range rows {
		if r.TargetAsin != "B0TARGET01" {
			t.Fatalf("target = %q", r.TargetAsin)
		}
		if r.AdType == "SP" && (r.Clicks != 4 || r.Acos != 25) {
			t.Fatalf("sp row = %+v", r)
		}
	}
}

func TestSearchTermsUseCampaignBrand(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	acme, _ := s.EnsureBrand(ctx, "Acme")
	s.SaveCampaign(ctx, &models.Campaign{CampaignID: "111", Name: "mugs", BrandID: acme.ID})
	ads := &fakeAds{
		terms: []models.SearchTermRow{
			{Date: "2024-02-07", CampaignID: "111", SearchTerm: "coffee mug", Clicks: 2, Cost: 1, Sales14d: 4},
			{Date: "2024-02-08", SearchTerm: "coffee mug", Clicks: 1},
			{Date: "2024-02-08", SearchTerm: "  "},
		},
	}
	newTestOrchestrator(s, nil, ads).Run(ctx, []Dataset{SearchTerms})

	rows, _ := s.SearchTermWeeks(ctx, time.Time{})
	if len(rows) != 2 {
		t.Fatalf("rows = %+v", rows)
	}
	for _, r := range rows {
		switch r.CampaignRef {
		case "111":
			if r.BrandID != acme.ID || r.CampaignID == nil {
				t.Fatalf("known campaign row = %+v", r)
			}
		case "unknown":
			b, _ := s.BrandByID(ctx, r.BrandID)
			if b.Name != models.BrandDefault || r.CampaignID != nil {
				t.Fatalf("unknown campaign row = %+v", r)
			}
		default:
			t.Fatalf("unexpected ref %q", r.CampaignRef)
		}
	}
}

func TestInventoryKeepsRealBrand(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	seller := mugSeller()
	seller.inventory = []models.InventoryItem{{SKU: "MUG-1", ASIN: "B0MUG00001", Fulfillable: 10}}
	newTestOrchestrator(s, seller, nil).Run(ctx, []Dataset{Products, Inventory})

	sku, _ := s.SKUBySKU(ctx, "MUG-1")
	b, _ := s.BrandByID(ctx, sku.BrandID)
	if b.Name != "Acme" {
		t.Fatalf("brand = %q", b.Name)
	}
	rows, _ := s.SkuWeeks(ctx, time.Time{})
	if rows[0].StockLevel != 10 || rows[0].StockDays != 5 {
		t.Fatalf("stock = %+v", rows[0])
	}
}

func TestParseDatasets(t *testing.T) {
	got, err := ParseDatasets("orders, ads")
	if err != nil || len(got) != 2 || got[0] != Orders || got[1] != Ads {
		t.Fatalf("got %v, %v", got, err)
	}
	if all, _ := ParseDatasets("all"); len(all) != len(DefaultDatasets) {
		t.Fatalf("all = %v", all)
	}
	if _, err := ParseDatasets("orders,bogus"); err == nil {
		t.Fatal("expected error for unknown dataset")
	}
}

func TestTrackerRejectsSkippedPhases(t *testing.T) {
	tr := newTracker(Orders, slog.New(slog.NewTextHandler(io.Discard, nil)))
	tr.to(PhaseFetching)
	tr.to(PhaseWriting)
	res := tr.finish(nil)
	if res.Status != StatusFailed || res.Err == nil {
		t.Fatalf("result = %+v", res)
	}
}
