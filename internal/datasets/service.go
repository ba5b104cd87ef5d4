package datasets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/AngelCh415/amazon-brain/internal/aggregate"
	"github.com/AngelCh415/amazon-brain/internal/models"
)

var ErrUnknownDataset = errors.New("unknown dataset")

// Reader is the read side of the store used by the sheets datasets.
type Reader interface {
	Brands(ctx context.Context) ([]models.Brand, error)
	SKUs(ctx context.Context) ([]models.SKU, error)
	Campaigns(ctx context.Context) ([]models.Campaign, error)
	BrandWeeks(ctx context.Context, since time.Time) ([]models.BrandWeek, error)
	SkuWeeks(ctx context.Context, since time.Time) ([]models.SkuWeek, error)
	CampaignWeeks(ctx context.Context, since time.Time) ([]models.CampaignWeek, error)
	SearchTermWeeks(ctx context.Context, since time.Time) ([]models.SearchTermWeek, error)
	TargetAsinWeeks(ctx context.Context, since time.Time) ([]models.TargetAsinWeek, error)
	Settings(ctx context.Context) (models.AccountSettings, error)
}

type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Weekly      bool   `json:"weekly"`
}

var index = []Info{
	{"brand-week", "Weekly brand-level aggregates", true},
	{"asin-week", "Weekly SKU/ASIN performance", true},
	{"campaign-week", "Weekly campaign performance data", true},
	{"searchterm-week", "Weekly search term performance", true},
	{"target-asin-week", "Weekly targeting performance by ASIN", true},
	{"brands", "Brand list with targets", false},
	{"campaigns", "Campaign list with brand mapping", false},
	{"config", "Account settings and thresholds", false},
}

// Index lists the datasets served under /api/sheets.
func Index() []Info { return append([]Info(nil), index...) }

func Known(name string) bool {
	for _, i := range index {
		if i.Name == name {
			return true
		}
	}
	return false
}

// Query holds the parsed query string of a dataset request.
type Query struct {
	Weeks  int    `validate:"gte=1,lte=520"`
	Limit  int    `validate:"gte=0"`
	Offset int    `validate:"gte=0"`
	Brand  string // lista separada por comas
}

var validate = validator.New()

// ParseQuery reads weeks (default 12), limit, offset and brand.
func ParseQuery(v url.Values) (Query, error) {
	q := Query{
		Weeks:  atoiDef(v.Get("weeks"), 12),
		Limit:  atoiDef(v.Get("limit"), 0),
		Offset: atoiDef(v.Get("offset"), 0),
		Brand:  v.Get("brand"),
	}
	if err := validate.Struct(q); err != nil {
		return Query{}, fmt.Errorf("query: %w", err)
	}
	return q, nil
}

type Response struct {
	Dataset   string    `json:"dataset"`
	UpdatedAt time.Time `json:"updated_at"`
	Count     int       `json:"count"`
	Data      any       `json:"data"`
}

type Service struct {
	st  Reader
	cal aggregate.Calendar
	now func() time.Time
}

func NewService(st Reader, cal aggregate.Calendar) *Service {
	return &Service{st: st, cal: cal, now: time.Now}
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func csvSet(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, p := range strings.Split(s, ",") {
		p = norm(p)
		if p != "" {
			out[p] = struct{}{}
		}
	}
	return out
}

// since is the first week start inside a window of n weeks ending with the
// current one.
func (s *Service) since(weeks int) time.Time {
	return s.cal.WeekStart(s.now()).AddDate(0, 0, -7*(weeks-1))
}

// Get builds one dataset. Unknown names return ErrUnknownDataset.
func (s *Service) Get(ctx context.Context, name string, q Query) (Response, error) {
	var (
		data  any
		count int
		err   error
	)
	switch name {
	case "brand-week":
		data, count, err = run(ctx, s.brandWeek, q)
	case "asin-week":
		data, count, err = run(ctx, s.asinWeek, q)
	case "campaign-week":
		data, count, err = run(ctx, s.campaignWeek, q)
	case "searchterm-week":
		data, count, err = run(ctx, s.searchTermWeek, q)
	case "target-asin-week":
		data, count, err = run(ctx, s.targetAsinWeek, q)
	case "brands":
		data, count, err = run(ctx, s.brands, q)
	case "campaigns":
		data, count, err = run(ctx, s.campaigns, q)
	case "config":
		var set models.AccountSettings
		set, err = s.st.Settings(ctx)
		data, count = set, 1
	default:
		return Response{}, fmt.Errorf("%w: %s", ErrUnknownDataset, name)
	}
	if err != nil {
		return Response{}, fmt.Errorf("%s: %w", name, err)
	}
	return Response{Dataset: name, UpdatedAt: s.now().UTC(), Count: count, Data: data}, nil
}

func run[T any](ctx context.Context, f func(context.Context, Query) ([]T, error), q Query) ([]T, int, error) {
	rows, err := f(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	rows = paginate(rows, q.Limit, q.Offset)
	return rows, len(rows), nil
}

// lookups joins ids to names in Go; both stores return flat rows.
type lookups struct {
	brands    map[uuid.UUID]models.Brand
	campaigns map[uuid.UUID]models.Campaign
	skus      map[uuid.UUID]models.SKU
	filter    map[string]struct{}
}

func (s *Service) lookups(ctx context.Context, q Query, withSKUs bool) (lookups, error) {
	l := lookups{
		brands:    map[uuid.UUID]models.Brand{},
		campaigns: map[uuid.UUID]models.Campaign{},
		skus:      map[uuid.UUID]models.SKU{},
		filter:    csvSet(q.Brand),
	}
	brands, err := s.st.Brands(ctx)
	if err != nil {
		return l, err
	}
	for _, b := range brands {
		l.brands[b.ID] = b
	}
	camps, err := s.st.Campaigns(ctx)
	if err != nil {
		return l, err
	}
	for _, c := range camps {
		l.campaigns[c.ID] = c
	}
	if withSKUs {
		skus, err := s.st.SKUs(ctx)
		if err != nil {
			return l, err
		}
		for _, k := range skus {
			l.skus[k.ID] = k
		}
	}
	return l, nil
}

func (l lookups) brandName(id uuid.UUID) string { return l.brands[id].Name }

func (l lookups) keep(brand string) bool {
	if len(l.filter) == 0 {
		return true
	}
	_, ok := l.filter[norm(brand)]
	return ok
}

func (l lookups) campaign(id *uuid.UUID) models.Campaign {
	if id == nil {
		return models.Campaign{}
	}
	return l.campaigns[*id]
}

type BrandWeekRow struct {
	WeekStart    string  `json:"week_start"`
	BrandName    string  `json:"brand_name"`
	Mode         string  `json:"mode"`
	TacosTarget  float64 `json:"tacos_target"`
	AcosTarget   float64 `json:"acos_target"`
	Revenue      float64 `json:"revenue"`
	RevenueExVat float64 `json:"revenue_ex_vat"`
	Units        int     `json:"units"`
	Orders       int     `json:"orders"`
	AdSpend      float64 `json:"ad_spend"`
	AdSales      float64 `json:"ad_sales"`
	Tacos        float64 `json:"tacos"`
	Acos         float64 `json:"acos"`
	Impressions  int     `json:"impressions"`
	Clicks       int     `json:"clicks"`
}

func (s *Service) brandWeek(ctx context.Context, q Query) ([]BrandWeekRow, error) {
	l, err := s.lookups(ctx, q, false)
	if err != nil {
		return nil, err
	}
	weeks, err := s.st.BrandWeeks(ctx, s.since(q.Weeks))
	if err != nil {
		return nil, err
	}
	rows := make([]BrandWeekRow, 0, len(weeks))
	for _, w := range weeks {
		b := l.brands[w.BrandID]
		if !l.keep(b.Name) {
			continue
		}
		rows = append(rows, BrandWeekRow{
			WeekStart:    aggregate.FormatDay(w.WeekStart),
			BrandName:    b.Name,
			Mode:         b.Mode,
			TacosTarget:  b.TacosTarget,
			AcosTarget:   b.AcosTarget,
			Revenue:      w.Revenue,
			RevenueExVat: w.RevenueExVat,
			Units:        w.Units,
			Orders:       w.Orders,
			AdSpend:      w.AdSpend,
			AdSales:      w.AdSales,
			Tacos:        w.Tacos,
			Acos:         w.Acos,
			Impressions:  w.Impressions,
			Clicks:       w.Clicks,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].WeekStart != rows[j].WeekStart {
			return rows[i].WeekStart > rows[j].WeekStart
		}
		return rows[i].BrandName < rows[j].BrandName
	})
	return rows, nil
}

type AsinWeekRow struct {
	WeekStart    string  `json:"week_start"`
	ASIN         string  `json:"asin"`
	SKU          string  `json:"sku"`
	Title        string  `json:"title"`
	BrandName    string  `json:"brand_name"`
	Revenue      float64 `json:"revenue"`
	RevenueExVat float64 `json:"revenue_ex_vat"`
	Units        int     `json:"units"`
	AdSpend      float64 `json:"ad_spend"`
	AdSales      float64 `json:"ad_sales"`
	Tacos        float64 `json:"tacos"`
	Acos         float64 `json:"acos"`
	StockLevel   int     `json:"stock_level"`
	StockDays    float64 `json:"stock_days"`
}

func (s *Service) asinWeek(ctx context.Context, q Query) ([]AsinWeekRow, error) {
	l, err := s.lookups(ctx, q, true)
	if err != nil {
		return nil, err
	}
	weeks, err := s.st.SkuWeeks(ctx, s.since(q.Weeks))
	if err != nil {
		return nil, err
	}
	rows := make([]AsinWeekRow, 0, len(weeks))
	for _, w := range weeks {
		k, ok := l.skus[w.SkuID]
		if !ok {
			continue
		}
		brand := l.brandName(k.BrandID)
		if !l.keep(brand) {
			continue
		}
		rows = append(rows, AsinWeekRow{
			WeekStart:    aggregate.FormatDay(w.WeekStart),
			ASIN:         k.ASIN,
			SKU:          k.SKU,
			Title:        k.Title,
			BrandName:    brand,
			Revenue:      w.Revenue,
			RevenueExVat: w.RevenueExVat,
			Units:        w.Units,
			AdSpend:      w.AdSpend,
			AdSales:      w.AdSales,
			Tacos:        w.Tacos,
			Acos:         w.Acos,
			StockLevel:   w.StockLevel,
			StockDays:    w.StockDays,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].WeekStart != rows[j].WeekStart {
			return rows[i].WeekStart > rows[j].WeekStart
		}
		return rows[i].SKU < rows[j].SKU
	})
	return rows, nil
}

type CampaignWeekRow struct {
	WeekStart    string  `json:"week_start"`
	CampaignID   string  `json:"campaign_id"`
	CampaignName string  `json:"campaign_name"`
	Type         string  `json:"type"`
	State        string  `json:"state"`
	BrandName    string  `json:"brand_name"`
	Impressions  int     `json:"impressions"`
	Clicks       int     `json:"clicks"`
	Spend        float64 `json:"spend"`
	Sales        float64 `json:"sales"`
	Orders       int     `json:"orders"`
	Acos         float64 `json:"acos"`
	CTR          float64 `json:"ctr"`
	CPC          float64 `json:"cpc"`
}

func (s *Service) campaignWeek(ctx context.Context, q Query) ([]CampaignWeekRow, error) {
	l, err := s.lookups(ctx, q, false)
	if err != nil {
		return nil, err
	}
	weeks, err := s.st.CampaignWeeks(ctx, s.since(q.Weeks))
	if err != nil {
		return nil, err
	}
	rows := make([]CampaignWeekRow, 0, len(weeks))
	for _, w := range weeks {
		c, ok := l.campaigns[w.CampaignID]
		if !ok {
			continue
		}
		brand := l.brandName(c.BrandID)
		if !l.keep(brand) {
			continue
		}
		rows = append(rows, CampaignWeekRow{
			WeekStart:    aggregate.FormatDay(w.WeekStart),
			CampaignID:   c.CampaignID,
			CampaignName: c.Name,
			Type:         c.Type,
			State:        c.State,
			BrandName:    brand,
			Impressions:  w.Impressions,
			Clicks:       w.Clicks,
			Spend:        w.Spend,
			Sales:        w.Sales,
			Orders:       w.Orders,
			Acos:         w.Acos,
			CTR:          aggregate.Round2(aggregate.CTR(w.Clicks, w.Impressions)),
			CPC:          aggregate.Round2(aggregate.CPC(w.Spend, w.Clicks)),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].WeekStart != rows[j].WeekStart {
			return rows[i].WeekStart > rows[j].WeekStart
		}
		return rows[i].CampaignName < rows[j].CampaignName
	})
	return rows, nil
}

type SearchTermWeekRow struct {
	WeekStart    string  `json:"week_start"`
	Term         string  `json:"term"`
	BrandName    string  `json:"brand_name"`
	CampaignName string  `json:"campaign_name"`
	Impressions  int     `json:"impressions"`
	Clicks       int     `json:"clicks"`
	Orders       int     `json:"orders"`
	Spend        float64 `json:"spend"`
	Sales        float64 `json:"sales"`
	Acos         float64 `json:"acos"`
	CVR          float64 `json:"cvr"`
}

func (s *Service) searchTermWeek(ctx context.Context, q Query) ([]SearchTermWeekRow, error) {
	l, err := s.lookups(ctx, q, false)
	if err != nil {
		return nil, err
	}
	weeks, err := s.st.SearchTermWeeks(ctx, s.since(q.Weeks))
	if err != nil {
		return nil, err
	}
	rows := make([]SearchTermWeekRow, 0, len(weeks))
	for _, w := range weeks {
		brand := l.brandName(w.BrandID)
		if !l.keep(brand) {
			continue
		}
		rows = append(rows, SearchTermWeekRow{
			WeekStart:    aggregate.FormatDay(w.WeekStart),
			Term:         w.Term,
			BrandName:    brand,
			CampaignName: l.campaign(w.CampaignID).Name,
			Impressions:  w.Impressions,
			Clicks:       w.Clicks,
			Orders:       w.Orders,
			Spend:        w.Spend,
			Sales:        w.Sales,
			Acos:         w.Acos,
			CVR:          aggregate.Round2(aggregate.CVR(w.Orders, w.Clicks)),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].WeekStart != rows[j].WeekStart {
			return rows[i].WeekStart > rows[j].WeekStart
		}
		if rows[i].Term != rows[j].Term {
			return rows[i].Term < rows[j].Term
		}
		return rows[i].CampaignName < rows[j].CampaignName
	})
	return rows, nil
}

type TargetAsinWeekRow struct {
	WeekStart    string  `json:"week_start"`
	TargetAsin   string  `json:"target_asin"`
	AdType       string  `json:"ad_type"`
	BrandName    string  `json:"brand_name"`
	CampaignName string  `json:"campaign_name"`
	Impressions  int     `json:"impressions"`
	Clicks       int     `json:"clicks"`
	Orders       int     `json:"orders"`
	Spend        float64 `json:"spend"`
	Sales        float64 `json:"sales"`
	Acos         float64 `json:"acos"`
}

func (s *Service) targetAsinWeek(ctx context.Context, q Query) ([]TargetAsinWeekRow, error) {
	l, err := s.lookups(ctx, q, false)
	if err != nil {
		return nil, err
	}
	weeks, err := s.st.TargetAsinWeeks(ctx, s.since(q.Weeks))
	if err != nil {
		return nil, err
	}
	rows := make([]TargetAsinWeekRow, 0, len(weeks))
	for _, w := range weeks {
		brand := l.brandName(w.BrandID)
		if !l.keep(brand) {
			continue
		}
		rows = append(rows, TargetAsinWeekRow{
			WeekStart:    aggregate.FormatDay(w.WeekStart),
			TargetAsin:   w.TargetAsin,
			AdType:       w.AdType,
			BrandName:    brand,
			CampaignName: l.campaign(w.CampaignID).Name,
			Impressions:  w.Impressions,
			Clicks:       w.Clicks,
			Orders:       w.Orders,
			Spend:        w.Spend,
			Sales:        w.Sales,
			Acos:         w.Acos,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].WeekStart != rows[j].WeekStart {
			return rows[i].WeekStart > rows[j].WeekStart
		}
		if rows[i].TargetAsin != rows[j].TargetAsin {
			return rows[i].TargetAsin < rows[j].TargetAsin
		}
		if rows[i].AdType != rows[j].AdType {
			return rows[i].AdType < rows[j].AdType
		}
		return rows[i].CampaignName < rows[j].CampaignName
	})
	return rows, nil
}

type BrandRow struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Mode         string    `json:"mode"`
	TacosTarget  float64   `json:"tacos_target"`
	AcosTarget   float64   `json:"acos_target"`
	MinStockDays int       `json:"min_stock_days"`
}

func (s *Service) brands(ctx context.Context, q Query) ([]BrandRow, error) {
	brands, err := s.st.Brands(ctx)
	if err != nil {
		return nil, err
	}
	filter := csvSet(q.Brand)
	rows := make([]BrandRow, 0, len(brands))
	for _, b := range brands {
		if _, ok := filter[norm(b.Name)]; len(filter) > 0 && !ok {
			continue
		}
		rows = append(rows, BrandRow{b.ID, b.Name, b.Mode, b.TacosTarget, b.AcosTarget, b.MinStockDays})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows, nil
}

type CampaignRow struct {
	ID            uuid.UUID `json:"id"`
	CampaignID    string    `json:"campaign_id"`
	Name          string    `json:"name"`
	Type          string    `json:"type"`
	State         string    `json:"state"`
	Budget        float64   `json:"budget"`
	TargetingType string    `json:"targeting_type"`
	BrandName     string    `json:"brand_name"`
}

func (s *Service) campaigns(ctx context.Context, q Query) ([]CampaignRow, error) {
	l, err := s.lookups(ctx, q, false)
	if err != nil {
		return nil, err
	}
	rows := make([]CampaignRow, 0, len(l.campaigns))
	for _, c := range l.campaigns {
		brand := l.brandName(c.BrandID)
		if !l.keep(brand) {
			continue
		}
		rows = append(rows, CampaignRow{c.ID, c.CampaignID, c.Name, c.Type, c.State, c.Budget, c.TargetingType, brand})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Name != rows[j].Name {
			return rows[i].Name < rows[j].Name
		}
		return rows[i].CampaignID < rows[j].CampaignID
	})
	return rows, nil
}

// paginate with limit 0 returns everything from offset on.
func paginate[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return []T{}
	}
	end := len(rows)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return rows[offset:end]
}

func atoiDef(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
