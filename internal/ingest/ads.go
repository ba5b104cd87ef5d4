package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AngelCh415/amazon-brain/internal/aggregate"
	"github.com/AngelCh415/amazon-brain/internal/models"
	"github.com/AngelCh415/amazon-brain/internal/reports"
)

// fetchCampaigns lists SP and SD campaigns concurrently.
func (r *run) fetchCampaigns(ctx context.Context) ([]models.CampaignInfo, error) {
	var sp, sd []models.CampaignInfo
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		sp, err = r.ads.ListCampaigns(gctx, "SP")
		return err
	})
	g.Go(func() (err error) {
		sd, err = r.ads.ListCampaigns(gctx, "SD")
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	r.log.Info("campaigns listed", slog.Int("sp", len(sp)), slog.Int("sd", len(sd)))
	return append(sp, sd...), nil
}

// adsData refreshes campaigns, then writes campaign weeks and the ad
// columns of brand and SKU weeks. Ad columns only land on weeks that
// already have sales; the rest are deferred to a later run.
func (r *run) adsData(ctx context.Context, t *tracker) error {
	t.to(PhaseFetching)
	listed, err := r.fetchCampaigns(ctx)
	if err != nil {
		return err
	}
	days := r.opts.adsDays()
	perf := reports.FetchChunked(ctx, reports.Ranges(r.started, days, r.opts.Chunks.Campaign), r.ads.CampaignPerformance)
	products := reports.FetchChunked(ctx, reports.Ranges(r.started, days, r.opts.Chunks.SkuAds), r.ads.AdvertisedProducts)
	t.log.Info("ad reports fetched", slog.Int("campaign_rows", len(perf)), slog.Int("product_rows", len(products)))

	t.to(PhaseAggregating)
	known, err := r.campaignIndex(ctx)
	if err != nil {
		return err
	}
	for _, c := range listed {
		known[c.CampaignID] = models.Campaign{CampaignID: c.CampaignID}
	}
	byCampaign := aggregate.New(r.cal)
	for _, row := range perf {
		if _, ok := known[row.CampaignID.String()]; !ok {
			t.res.Unmapped++
			continue
		}
		day, ok := r.recordDay(row.Date)
		if !ok {
			continue
		}
		byCampaign.Add(aggregate.Record{
			Date: day,
			Keys: []string{row.CampaignID.String()},
			Metrics: aggregate.Metrics{
				Impressions: row.Impressions,
				Clicks:      row.Clicks,
				Spend:       row.Cost,
				Sales:       row.Sales14d,
			},
		})
	}

	t.to(PhaseWriting)
	for _, c := range listed {
		brandID, err := r.res.ResolveCampaignBrand(ctx, c.CampaignID, c.Name)
		if err != nil {
			return err
		}
		err = r.repo.SaveCampaign(ctx, &models.Campaign{
			CampaignID:    c.CampaignID,
			BrandID:       brandID,
			Name:          c.Name,
			Type:          c.Type,
			State:         c.State,
			Budget:        c.Budget,
			TargetingType: c.TargetingType,
		})
		if err != nil {
			return fmt.Errorf("save campaign %s: %w", c.CampaignID, err)
		}
	}
	idx, err := r.campaignIndex(ctx)
	if err != nil {
		return err
	}

	// Campaign weeks, then roll campaigns up to their brand. Buckets are
	// already week starts, so the rollup uses the plain UTC calendar.
	byBrand := aggregate.New(aggregate.Calendar{})
	for _, b := range byCampaign.Buckets() {
		c, ok := idx[b.Key(0)]
		if !ok {
			continue
		}
		if err := r.w.WriteCampaignWeek(ctx, c.ID, b.WeekStart, b.Metrics); err != nil {
			return err
		}
		t.res.Rows++
		byBrand.Add(aggregate.Record{Date: b.WeekStart, Keys: []string{c.BrandID.String()}, Metrics: b.Metrics})
	}
	for _, b := range byBrand.Buckets() {
		brandID, err := uuid.Parse(b.Key(0))
		if err != nil {
			return fmt.Errorf("brand key %q: %w", b.Key(0), err)
		}
		ok, err := r.w.ApplyBrandAds(ctx, brandID, b.WeekStart, b.Metrics)
		if err != nil {
			return err
		}
		if !ok {
			t.res.Deferred++
			continue
		}
		t.res.Rows++
	}

	return r.skuAds(ctx, t, products)
}

func (r *run) skuAds(ctx context.Context, t *tracker, rows []models.AdvertisedProductRow) error {
	skus, err := r.repo.SKUs(ctx)
	if err != nil {
		return fmt.Errorf("load skus: %w", err)
	}
	byASIN := make(map[string]uuid.UUID, len(skus))
	for _, s := range skus {
		if s.ASIN != "" {
			byASIN[s.ASIN] = s.ID
		}
	}

	bySKU := aggregate.New(r.cal)
	for _, row := range rows {
		id, ok := byASIN[strings.ToUpper(strings.TrimSpace(row.AdvertisedAsin))]
		if !ok {
			t.res.Unmapped++
			continue
		}
		day, ok := r.recordDay(row.Date)
		if !ok {
			continue
		}
		bySKU.Add(aggregate.Record{
			Date: day,
			Keys: []string{id.String()},
			Metrics: aggregate.Metrics{
				Impressions: row.Impressions,
				Clicks:      row.Clicks,
				Spend:       row.Cost,
				Sales:       row.Sales14d,
				Orders:      row.Purchases14d,
			},
		})
	}
	for _, b := range bySKU.Buckets() {
		skuID, err := uuid.Parse(b.Key(0))
		if err != nil {
			return fmt.Errorf("sku key %q: %w", b.Key(0), err)
		}
		ok, err := r.w.ApplySkuAds(ctx, skuID, b.WeekStart, b.Metrics)
		if err != nil {
			return err
		}
		if !ok {
			t.res.Deferred++
			continue
		}
		t.res.Rows++
	}
	return nil
}

type adTypedRow struct {
	adType string
	row    models.TargetingRow
}

// targeting keeps product targets only and buckets them by ad type,
// target ASIN and campaign. SP and SD reports for a chunk run together.
func (r *run) targeting(ctx context.Context, t *tracker) error {
	t.to(PhaseFetching)
	var rows []adTypedRow
	for _, dr := range reports.Ranges(r.started, r.opts.adsDays(), r.opts.Chunks.Targeting) {
		if ctx.Err() != nil {
			break
		}
		var sp, sd []models.TargetingRow
		var g errgroup.Group
		g.Go(func() error { sp = r.ads.SPTargeting(ctx, dr); return nil })
		g.Go(func() error { sd = r.ads.SDTargeting(ctx, dr); return nil })
		g.Wait()
		for _, row := range sp {
			rows = append(rows, adTypedRow{"SP", row})
		}
		for _, row := range sd {
			rows = append(rows, adTypedRow{"SD", row})
		}
	}
	if len(rows) == 0 {
		t.log.Info("no targeting rows")
		return nil
	}

	t.to(PhaseAggregating)
	agg := aggregate.New(r.cal)
	for _, tr := range rows {
		asin := tr.row.TargetASIN()
		if asin == "" {
			continue
		}
		day, ok := r.recordDay(tr.row.Date)
		if !ok {
			continue
		}
		sales, orders := tr.row.SalesAndOrders()
		agg.Add(aggregate.Record{
			Date: day,
			Keys: []string{tr.adType, asin, campaignRef(tr.row.CampaignID)},
			Metrics: aggregate.Metrics{
				Impressions: tr.row.Impressions,
				Clicks:      tr.row.Clicks,
				Spend:       tr.row.Cost,
				Sales:       sales,
				Orders:      orders,
			},
		})
	}

	t.to(PhaseWriting)
	idx, err := r.campaignIndex(ctx)
	if err != nil {
		return err
	}
	for _, b := range agg.Buckets() {
		tgt, err := r.campaignTarget(ctx, idx, b.Key(1), b.Key(2), b.Key(0))
		if err != nil {
			return err
		}
		if err := r.w.WriteTargetAsinWeek(ctx, tgt, b.WeekStart, b.Metrics); err != nil {
			return err
		}
		t.res.Rows++
	}
	return nil
}

func (r *run) searchTerms(ctx context.Context, t *tracker) error {
	t.to(PhaseFetching)
	rows := reports.FetchChunked(ctx, reports.Ranges(r.started, r.opts.adsDays(), r.opts.Chunks.SearchTerm), r.ads.SearchTerms)
	if len(rows) == 0 {
		t.log.Info("no search term rows")
		return nil
	}

	t.to(PhaseAggregating)
	agg := aggregate.New(r.cal)
	for _, row := range rows {
		term := strings.TrimSpace(row.SearchTerm)
		if term == "" {
			continue
		}
		day, ok := r.recordDay(row.Date)
		if !ok {
			continue
		}
		agg.Add(aggregate.Record{
			Date: day,
			Keys: []string{term, campaignRef(row.CampaignID)},
			Metrics: aggregate.Metrics{
				Impressions: row.Impressions,
				Clicks:      row.Clicks,
				Spend:       row.Cost,
				Sales:       row.Sales14d,
				Orders:      row.Purchases14d,
			},
		})
	}

	t.to(PhaseWriting)
	idx, err := r.campaignIndex(ctx)
	if err != nil {
		return err
	}
	for _, b := range agg.Buckets() {
		tgt, err := r.campaignTarget(ctx, idx, b.Key(0), b.Key(1), "")
		if err != nil {
			return err
		}
		if err := r.w.WriteSearchTermWeek(ctx, tgt, b.WeekStart, b.Metrics); err != nil {
			return err
		}
		t.res.Rows++
	}
	return nil
}
