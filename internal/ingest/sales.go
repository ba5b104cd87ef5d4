package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/AngelCh415/amazon-brain/internal/aggregate"
	"github.com/AngelCh415/amazon-brain/internal/models"
)

// lookupBrands fills the SKU brand cache from listing attributes, falling
// back to the stored brand when the listing has none. Lookups run one at a
// time; the seller client rate limits them.
func (r *run) lookupBrands(ctx context.Context, skus []string) {
	for _, sku := range skus {
		if sku == "" {
			continue
		}
		if _, ok := r.res.SKUBrand(sku); ok {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		brand := r.seller.ListingBrand(ctx, sku)
		if models.IsPlaceholderBrand(brand) {
			if stored, ok := r.res.StoredBrand(ctx, sku); ok {
				brand = stored
			}
		}
		r.res.SetSKUBrand(sku, brand)
	}
}

func (r *run) skuBrandName(sku string) string {
	if b, ok := r.res.SKUBrand(sku); ok && b != "" {
		return b
	}
	return models.BrandUnknown
}

func (r *run) products(ctx context.Context, t *tracker) error {
	t.to(PhaseFetching)
	listings, err := r.seller.ActiveListings(ctx)
	if err != nil {
		return fmt.Errorf("active listings: %w", err)
	}
	if len(listings) == 0 {
		t.log.Info("no active listings")
		return nil
	}

	t.to(PhaseAggregating)
	skus := make([]string, 0, len(listings))
	for _, l := range listings {
		skus = append(skus, l.SKU)
	}
	r.lookupBrands(ctx, skus)

	t.to(PhaseWriting)
	week := r.cal.WeekStart(r.started)
	for _, l := range listings {
		if l.SKU == "" {
			continue
		}
		brandID, err := r.res.ResolveBrand(ctx, r.skuBrandName(l.SKU))
		if err != nil {
			return err
		}
		skuID, err := r.res.ResolveSKU(ctx, l.SKU, l.ASIN, l.Name, brandID)
		if err != nil {
			return err
		}
		if err := r.w.WriteSkuStock(ctx, skuID, week, l.Quantity); err != nil {
			return err
		}
		t.res.Rows++
	}
	return nil
}

type skuInfo struct {
	asin, title string
}

func (r *run) orders(ctx context.Context, t *tracker) error {
	t.to(PhaseFetching)
	since := r.started.AddDate(0, 0, -r.opts.Days)
	lines, err := r.seller.Orders(ctx, since)
	if err != nil {
		return fmt.Errorf("orders: %w", err)
	}
	if len(lines) == 0 {
		t.log.Info("no orders in window", slog.Time("since", since))
		return nil
	}

	t.to(PhaseAggregating)
	skus := make([]string, 0, len(lines))
	for _, l := range lines {
		skus = append(skus, l.SKU)
	}
	r.lookupBrands(ctx, skus)

	byBrand := aggregate.New(r.cal)
	bySKU := aggregate.New(r.cal)
	info := make(map[string]skuInfo)
	for _, l := range lines {
		m := aggregate.Metrics{Revenue: l.ItemPrice, Units: l.Quantity}
		byBrand.Add(aggregate.Record{Date: l.PurchaseDate, Keys: []string{r.skuBrandName(l.SKU)}, OrderID: l.OrderID, Metrics: m})
		if l.SKU == "" {
			continue
		}
		bySKU.Add(aggregate.Record{Date: l.PurchaseDate, Keys: []string{l.SKU}, OrderID: l.OrderID, Metrics: m})
		if _, ok := info[l.SKU]; !ok {
			info[l.SKU] = skuInfo{asin: l.ASIN, title: l.Title}
		}
	}

	t.to(PhaseWriting)
	for _, b := range byBrand.Buckets() {
		brandID, err := r.res.ResolveBrand(ctx, b.Key(0))
		if err != nil {
			return err
		}
		if err := r.w.WriteBrandSales(ctx, brandID, b.WeekStart, b.Metrics, b.DistinctOrders()); err != nil {
			return err
		}
		t.res.Rows++
	}

	skuIDs := make(map[string]uuid.UUID)
	for _, b := range bySKU.Buckets() {
		sku := b.Key(0)
		id, ok := skuIDs[sku]
		if !ok {
			brandID, err := r.res.ResolveBrand(ctx, r.skuBrandName(sku))
			if err != nil {
				return err
			}
			in := info[sku]
			if id, err = r.res.ResolveSKU(ctx, sku, in.asin, in.title, brandID); err != nil {
				return err
			}
			skuIDs[sku] = id
		}
		if err := r.w.WriteSkuSales(ctx, id, b.WeekStart, b.Metrics); err != nil {
			return err
		}
		t.res.Rows++
	}
	return nil
}

// inventory is the legacy FBA stock sync. New SKUs land on the Default
// brand; known SKUs keep their real brand.
func (r *run) inventory(ctx context.Context, t *tracker) error {
	t.to(PhaseFetching)
	items, err := r.seller.FBAInventory(ctx)
	if err != nil {
		return fmt.Errorf("fba inventory: %w", err)
	}
	if len(items) == 0 {
		t.log.Info("no inventory items")
		return nil
	}

	t.to(PhaseAggregating)
	brandID, err := r.res.ResolveBrand(ctx, models.BrandDefault)
	if err != nil {
		return err
	}

	t.to(PhaseWriting)
	week := r.cal.WeekStart(r.started)
	for _, it := range items {
		if it.SKU == "" {
			continue
		}
		skuID, err := r.res.ResolveSKU(ctx, it.SKU, it.ASIN, it.Name, brandID)
		if err != nil {
			return err
		}
		if err := r.w.WriteSkuStock(ctx, skuID, week, it.Fulfillable); err != nil {
			return err
		}
		t.res.Rows++
	}
	return nil
}
