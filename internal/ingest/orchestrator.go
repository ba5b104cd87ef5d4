package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AngelCh415/amazon-brain/internal/aggregate"
	"github.com/AngelCh415/amazon-brain/internal/entity"
	"github.com/AngelCh415/amazon-brain/internal/metrics"
	"github.com/AngelCh415/amazon-brain/internal/models"
	"github.com/AngelCh415/amazon-brain/internal/reports"
	"github.com/AngelCh415/amazon-brain/internal/writer"
)

type Dataset string

const (
	Products    Dataset = "products"
	Orders      Dataset = "orders"
	Ads         Dataset = "ads"
	Targeting   Dataset = "targeting"
	SearchTerms Dataset = "searchterms"
	Inventory   Dataset = "inventory"
)

// order is the dependency order: products fill the SKU brand cache that
// orders rely on, ads link campaigns to brands before targeting and search
// terms read those links.
var order = []Dataset{Products, Orders, Ads, Targeting, SearchTerms, Inventory}

// DefaultDatasets is what a run without explicit selection syncs.
// Inventory is legacy and only runs when asked for.
var DefaultDatasets = []Dataset{Products, Orders, Ads, Targeting, SearchTerms}

var ErrMissingSource = errors.New("ingest: missing credentials for selected datasets")

// ParseDatasets reads a comma separated list; "all" or "" selects the
// defaults.
func ParseDatasets(s string) ([]Dataset, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "all" {
		return DefaultDatasets, nil
	}
	var out []Dataset
	for _, p := range strings.Split(s, ",") {
		d := Dataset(strings.ToLower(strings.TrimSpace(p)))
		switch d {
		case Products, Orders, Ads, Targeting, SearchTerms, Inventory:
			out = append(out, d)
		case "all":
			out = append(out, DefaultDatasets...)
		default:
			return nil, fmt.Errorf("unknown dataset %q", p)
		}
	}
	return out, nil
}

type SellerSource interface {
	ActiveListings(ctx context.Context) ([]models.Listing, error)
	ListingBrand(ctx context.Context, sku string) string
	Orders(ctx context.Context, since time.Time) ([]models.OrderLine, error)
	FBAInventory(ctx context.Context) ([]models.InventoryItem, error)
}

type AdsSource interface {
	ListCampaigns(ctx context.Context, adType string) ([]models.CampaignInfo, error)
	CampaignPerformance(ctx context.Context, dr reports.DateRange) []models.CampaignPerformanceRow
	AdvertisedProducts(ctx context.Context, dr reports.DateRange) []models.AdvertisedProductRow
	SearchTerms(ctx context.Context, dr reports.DateRange) []models.SearchTermRow
	SPTargeting(ctx context.Context, dr reports.DateRange) []models.TargetingRow
	SDTargeting(ctx context.Context, dr reports.DateRange) []models.TargetingRow
}

type Repository interface {
	entity.Repository
	writer.Repository
	SKUs(ctx context.Context) ([]models.SKU, error)
	SaveCampaign(ctx context.Context, c *models.Campaign) error
	Campaigns(ctx context.Context) ([]models.Campaign, error)
	TouchLastSync(ctx context.Context, at time.Time) error
}

// Chunks are the report window sizes in days, per report family.
type Chunks struct {
	Campaign   int
	SkuAds     int
	SearchTerm int
	Targeting  int
}

type Options struct {
	Days       int
	AdsMaxDays int
	VatRate    float64
	Chunks     Chunks
}

func (o Options) withDefaults() Options {
	if o.Days <= 0 {
		o.Days = 90
	}
	if o.AdsMaxDays <= 0 {
		o.AdsMaxDays = 60
	}
	if o.Chunks.Campaign <= 0 {
		o.Chunks.Campaign = 7
	}
	if o.Chunks.SkuAds <= 0 {
		o.Chunks.SkuAds = 7
	}
	if o.Chunks.SearchTerm <= 0 {
		o.Chunks.SearchTerm = 7
	}
	if o.Chunks.Targeting <= 0 {
		o.Chunks.Targeting = 14
	}
	return o
}

// adsDays clamps the lookback to what the reporting API accepts.
func (o Options) adsDays() int { return min(o.Days, o.AdsMaxDays) }

type Orchestrator struct {
	repo   Repository
	seller SellerSource
	ads    AdsSource
	cal    aggregate.Calendar
	opts   Options
	log    *slog.Logger
	now    func() time.Time
}

// New wires an orchestrator. seller or ads may be nil when their
// credentials are not configured; Run refuses datasets that need them.
func New(repo Repository, seller SellerSource, ads AdsSource, cal aggregate.Calendar, opts Options, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		repo:   repo,
		seller: seller,
		ads:    ads,
		cal:    cal,
		opts:   opts.withDefaults(),
		log:    log,
		now:    time.Now,
	}
}

// WithDays returns a copy that looks back days instead of the configured
// window. Non-positive values keep the window.
func (o *Orchestrator) WithDays(days int) *Orchestrator {
	cp := *o
	if days > 0 {
		cp.opts.Days = days
	}
	return &cp
}

// Run syncs the selected datasets in dependency order. A failing dataset
// is recorded in the summary and the run moves on.
func (o *Orchestrator) Run(ctx context.Context, selected []Dataset) (Summary, error) {
	if len(selected) == 0 {
		selected = DefaultDatasets
	}
	want := make(map[Dataset]bool, len(selected))
	for _, d := range selected {
		want[d] = true
	}
	if err := o.checkSources(want); err != nil {
		return Summary{}, err
	}

	r := &run{
		Orchestrator: o,
		res:          entity.NewResolver(o.repo, o.log),
		w:            writer.New(o.repo, o.opts.VatRate, o.log),
		started:      o.now(),
	}
	sum := Summary{Started: r.started}
	o.log.Info("sync start", slog.Int("days", o.opts.Days), slog.Int("ads_days", o.opts.adsDays()), slog.Any("datasets", selected))

	for _, d := range order {
		if !want[d] {
			continue
		}
		if ctx.Err() != nil {
			sum.Results = append(sum.Results, Result{Dataset: d, Status: StatusSkipped, Err: ctx.Err(), Error: ctx.Err().Error()})
			continue
		}
		res := r.sync(ctx, d)
		sum.Results = append(sum.Results, res)
		observe(res)
	}

	finished := o.now()
	if err := o.repo.TouchLastSync(ctx, finished); err != nil {
		o.log.Warn("last sync not recorded", slog.Any("err", err))
	} else {
		metrics.LastSync.Set(float64(finished.Unix()))
	}
	sum.Duration = finished.Sub(r.started)
	sum.log(o.log)
	return sum, nil
}

func (o *Orchestrator) checkSources(want map[Dataset]bool) error {
	var missing []string
	if o.seller == nil && (want[Products] || want[Orders] || want[Inventory]) {
		missing = append(missing, "selling partner")
	}
	if o.ads == nil && (want[Ads] || want[Targeting] || want[SearchTerms]) {
		missing = append(missing, "advertising")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingSource, strings.Join(missing, ", "))
	}
	return nil
}

// run holds the per-run caches.
type run struct {
	*Orchestrator
	res     *entity.Resolver
	w       *writer.Writer
	started time.Time
}

func (r *run) sync(ctx context.Context, d Dataset) Result {
	t := newTracker(d, r.log)
	var err error
	switch d {
	case Products:
		err = r.products(ctx, t)
	case Orders:
		err = r.orders(ctx, t)
	case Ads:
		err = r.adsData(ctx, t)
	case Targeting:
		err = r.targeting(ctx, t)
	case SearchTerms:
		err = r.searchTerms(ctx, t)
	case Inventory:
		r.log.Warn("inventory sync is deprecated, use products")
		err = r.inventory(ctx, t)
	}
	return t.finish(err)
}

// recordDay parses a report date; rows without one belong to today.
func (r *run) recordDay(s string) (time.Time, bool) {
	if strings.TrimSpace(s) == "" {
		return r.started, true
	}
	d, err := r.cal.ParseDay(s)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// campaignIndex maps Amazon campaign ids to stored campaigns.
func (r *run) campaignIndex(ctx context.Context) (map[string]models.Campaign, error) {
	cs, err := r.repo.Campaigns(ctx)
	if err != nil {
		return nil, fmt.Errorf("load campaigns: %w", err)
	}
	idx := make(map[string]models.Campaign, len(cs))
	for _, c := range cs {
		idx[c.CampaignID] = c
	}
	return idx, nil
}

// campaignTarget resolves the campaign columns of a search-term or target
// row. Unknown campaigns keep the "unknown" ref and the Default brand.
func (r *run) campaignTarget(ctx context.Context, idx map[string]models.Campaign, key, ref, adType string) (writer.Target, error) {
	t := writer.Target{Key: key, CampaignRef: ref, AdType: adType}
	if c, ok := idx[ref]; ok {
		id := c.ID
		t.CampaignID = &id
		t.BrandID = c.BrandID
	}
	if t.BrandID == uuid.Nil {
		id, err := r.res.ResolveBrand(ctx, models.BrandDefault)
		if err != nil {
			return t, err
		}
		t.BrandID = id
	}
	return t, nil
}

func campaignRef(id models.FlexID) string {
	if s := strings.TrimSpace(id.String()); s != "" {
		return s
	}
	return "unknown"
}
