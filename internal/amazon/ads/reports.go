package ads

import (
	"context"

	"github.com/AngelCh415/amazon-brain/internal/models"
	"github.com/AngelCh415/amazon-brain/internal/reports"
)

// Reports builds the v3 report requests the sync needs.
type Reports struct {
	rc *reports.Client
	// SearchTermPoll overrides the poll budget of search term reports,
	// which Amazon is slowest to generate.
	SearchTermPoll reports.PollConfig
}

func NewReports(rc *reports.Client) *Reports { return &Reports{rc: rc} }

func (r *Reports) CampaignPerformance(ctx context.Context, dr reports.DateRange) []models.CampaignPerformanceRow {
	return reports.Fetch[models.CampaignPerformanceRow](ctx, r.rc, reports.Request{
		Name:         "SP Campaign Performance",
		AdProduct:    reports.SponsoredProducts,
		GroupBy:      []string{"campaign"},
		Columns:      []string{"date", "campaignId", "campaignName", "impressions", "clicks", "cost", "sales14d"},
		ReportTypeID: "spCampaigns",
		Range:        dr,
	})
}

func (r *Reports) AdvertisedProducts(ctx context.Context, dr reports.DateRange) []models.AdvertisedProductRow {
	return reports.Fetch[models.AdvertisedProductRow](ctx, r.rc, reports.Request{
		Name:         "SP Advertised Product Report",
		AdProduct:    reports.SponsoredProducts,
		GroupBy:      []string{"advertiser"},
		Columns:      []string{"date", "advertisedAsin", "advertisedSku", "campaignId", "impressions", "clicks", "cost", "sales14d", "purchases14d"},
		ReportTypeID: "spAdvertisedProduct",
		Range:        dr,
	})
}

func (r *Reports) SearchTerms(ctx context.Context, dr reports.DateRange) []models.SearchTermRow {
	return reports.Fetch[models.SearchTermRow](ctx, r.rc, reports.Request{
		Name:         "SP Search Term Report",
		AdProduct:    reports.SponsoredProducts,
		GroupBy:      []string{"searchTerm"},
		Columns:      []string{"date", "campaignId", "campaignName", "adGroupId", "adGroupName", "searchTerm", "impressions", "clicks", "cost", "sales14d", "purchases14d"},
		ReportTypeID: "spSearchTerm",
		Range:        dr,
		Poll:         r.SearchTermPoll,
	})
}

func (r *Reports) SPTargeting(ctx context.Context, dr reports.DateRange) []models.TargetingRow {
	return reports.Fetch[models.TargetingRow](ctx, r.rc, reports.Request{
		Name:         "SP Targeting Report",
		AdProduct:    reports.SponsoredProducts,
		GroupBy:      []string{"targeting"},
		Columns:      []string{"date", "campaignId", "campaignName", "targeting", "impressions", "clicks", "cost", "sales14d", "purchases14d"},
		ReportTypeID: "spTargeting",
		Range:        dr,
	})
}

func (r *Reports) SDTargeting(ctx context.Context, dr reports.DateRange) []models.TargetingRow {
	return reports.Fetch[models.TargetingRow](ctx, r.rc, reports.Request{
		Name:         "SD Targeting Report",
		AdProduct:    reports.SponsoredDisplay,
		GroupBy:      []string{"targeting"},
		Columns:      []string{"date", "campaignId", "campaignName", "targetingExpression", "impressions", "clicks", "cost", "sales", "purchases"},
		ReportTypeID: "sdTargeting",
		Range:        dr,
	})
}

// API bundles campaign listing and reporting for one profile.
type API struct {
	*Client
	*Reports
}
