package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AngelCh415/amazon-brain/internal/models"
)

type brandWeekKey struct {
	BrandID uuid.UUID
	Week    string
}

type skuWeekKey struct {
	SkuID uuid.UUID
	Week  string
}

type campaignWeekKey struct {
	CampaignID uuid.UUID
	Week       string
}

type searchTermKey struct {
	Term        string
	CampaignRef string
	Week        string
}

type targetAsinKey struct {
	TargetAsin  string
	CampaignRef string
	AdType      string
	Week        string
}

// MemoryStore keeps everything in maps keyed by the same natural keys as
// the SQL unique constraints. Used by tests and dry runs.
type MemoryStore struct {
	mu            sync.RWMutex
	brands        map[uuid.UUID]*models.Brand
	skus          map[uuid.UUID]*models.SKU
	campaigns     map[uuid.UUID]*models.Campaign
	brandWeeks    map[brandWeekKey]*models.BrandWeek
	skuWeeks      map[skuWeekKey]*models.SkuWeek
	campaignWeeks map[campaignWeekKey]*models.CampaignWeek
	searchTerms   map[searchTermKey]*models.SearchTermWeek
	targetAsins   map[targetAsinKey]*models.TargetAsinWeek
	alerts        map[uuid.UUID]*models.Alert
	settings      models.AccountSettings
	now           func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		brands:        make(map[uuid.UUID]*models.Brand),
		skus:          make(map[uuid.UUID]*models.SKU),
		campaigns:     make(map[uuid.UUID]*models.Campaign),
		brandWeeks:    make(map[brandWeekKey]*models.BrandWeek),
		skuWeeks:      make(map[skuWeekKey]*models.SkuWeek),
		campaignWeeks: make(map[campaignWeekKey]*models.CampaignWeek),
		searchTerms:   make(map[searchTermKey]*models.SearchTermWeek),
		targetAsins:   make(map[targetAsinKey]*models.TargetAsinWeek),
		alerts:        make(map[uuid.UUID]*models.Alert),
		settings:      DefaultSettings(),
		now:           time.Now,
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

// brands

func (s *MemoryStore) EnsureBrand(_ context.Context, name string) (models.Brand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.brands {
		if b.Name == name {
			return *b, nil
		}
	}
	b := newBrand(name)
	b.CreatedAt = s.now()
	s.brands[b.ID] = &b
	return b, nil
}

func (s *MemoryStore) BrandByID(_ context.Context, id uuid.UUID) (models.Brand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.brands[id]; ok {
		return *b, nil
	}
	return models.Brand{}, ErrNotFound
}

func (s *MemoryStore) Brands(context.Context) ([]models.Brand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Brand, 0, len(s.brands))
	for _, b := range s.brands {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// skus

func (s *MemoryStore) SKUBySKU(_ context.Context, sku string) (models.SKU, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.skus {
		if v.SKU == sku {
			return *v, nil
		}
	}
	return models.SKU{}, ErrNotFound
}

func (s *MemoryStore) SKUByASIN(_ context.Context, asin string) (models.SKU, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *models.SKU
	for _, v := range s.skus {
		if v.ASIN == asin && (found == nil || v.SKU < found.SKU) {
			found = v
		}
	}
	if found == nil {
		return models.SKU{}, ErrNotFound
	}
	return *found, nil
}

func (s *MemoryStore) SaveSKU(_ context.Context, in *models.SKU) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, v := range s.skus {
		if v.SKU == in.SKU {
			v.ASIN, v.Title, v.BrandID, v.UpdatedAt = in.ASIN, in.Title, in.BrandID, now
			*in = *v
			return nil
		}
	}
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	in.CreatedAt, in.UpdatedAt = now, now
	cp := *in
	s.skus[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) SKUs(context.Context) ([]models.SKU, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SKU, 0, len(s.skus))
	for _, v := range s.skus {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

// campaigns

func (s *MemoryStore) CampaignByExternalID(_ context.Context, campaignID string) (models.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.campaigns {
		if c.CampaignID == campaignID {
			return *c, nil
		}
	}
	return models.Campaign{}, ErrNotFound
}

func (s *MemoryStore) SaveCampaign(_ context.Context, in *models.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	in.UpdatedAt = s.now()
	for _, c := range s.campaigns {
		if c.CampaignID == in.CampaignID {
			in.ID = c.ID
			*c = *in
			return nil
		}
	}
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	cp := *in
	s.campaigns[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) Campaigns(context.Context) ([]models.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Campaign, 0, len(s.campaigns))
	for _, c := range s.campaigns {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// weekly facts

func (s *MemoryStore) UpsertBrandSales(_ context.Context, w models.BrandWeek) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := brandWeekKey{w.BrandID, day(w.WeekStart)}
	row, ok := s.brandWeeks[k]
	if !ok {
		row = &models.BrandWeek{ID: uuid.New(), BrandID: w.BrandID, WeekStart: w.WeekStart}
		s.brandWeeks[k] = row
	}
	row.Revenue, row.RevenueExVat, row.Units, row.Orders = w.Revenue, w.RevenueExVat, w.Units, w.Orders
	row.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) BrandWeekRevenue(_ context.Context, brandID uuid.UUID, week time.Time) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.brandWeeks[brandWeekKey{brandID, day(week)}]
	if !ok {
		return 0, ErrNotFound
	}
	return row.Revenue, nil
}

func (s *MemoryStore) UpdateBrandAds(_ context.Context, w models.BrandWeek) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.brandWeeks[brandWeekKey{w.BrandID, day(w.WeekStart)}]
	if !ok {
		return ErrNotFound
	}
	row.AdSpend, row.AdSales, row.Impressions, row.Clicks = w.AdSpend, w.AdSales, w.Impressions, w.Clicks
	row.Tacos, row.Acos = w.Tacos, w.Acos
	row.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) skuRow(w models.SkuWeek) *models.SkuWeek {
	k := skuWeekKey{w.SkuID, day(w.WeekStart)}
	row, ok := s.skuWeeks[k]
	if !ok {
		row = &models.SkuWeek{ID: uuid.New(), SkuID: w.SkuID, WeekStart: w.WeekStart}
		s.skuWeeks[k] = row
	}
	row.UpdatedAt = s.now()
	return row
}

func (s *MemoryStore) UpsertSkuSales(_ context.Context, w models.SkuWeek) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.skuRow(w)
	row.Revenue, row.RevenueExVat, row.Units = w.Revenue, w.RevenueExVat, w.Units
	return nil
}

func (s *MemoryStore) UpsertSkuStock(_ context.Context, w models.SkuWeek) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.skuRow(w)
	row.StockLevel, row.StockDays = w.StockLevel, w.StockDays
	return nil
}

func (s *MemoryStore) SkuWeekRevenue(_ context.Context, skuID uuid.UUID, week time.Time) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.skuWeeks[skuWeekKey{skuID, day(week)}]
	if !ok {
		return 0, ErrNotFound
	}
	return row.Revenue, nil
}

func (s *MemoryStore) UpdateSkuAds(_ context.Context, w models.SkuWeek) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.skuWeeks[skuWeekKey{w.SkuID, day(w.WeekStart)}]
	if !ok {
		return ErrNotFound
	}
	row.AdSpend, row.AdSales, row.AdOrders = w.AdSpend, w.AdSales, w.AdOrders
	row.Impressions, row.Clicks = w.Impressions, w.Clicks
	row.Tacos, row.Acos, row.CTR, row.CPC, row.CVR = w.Tacos, w.Acos, w.CTR, w.CPC, w.CVR
	row.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) UpsertCampaignWeek(_ context.Context, w models.CampaignWeek) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := campaignWeekKey{w.CampaignID, day(w.WeekStart)}
	if row, ok := s.campaignWeeks[k]; ok {
		w.ID = row.ID
	} else if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	w.UpdatedAt = s.now()
	s.campaignWeeks[k] = &w
	return nil
}

func (s *MemoryStore) UpsertSearchTermWeek(_ context.Context, w models.SearchTermWeek) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := searchTermKey{w.Term, w.CampaignRef, day(w.WeekStart)}
	if row, ok := s.searchTerms[k]; ok {
		w.ID = row.ID
	} else if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	w.UpdatedAt = s.now()
	s.searchTerms[k] = &w
	return nil
}

func (s *MemoryStore) UpsertTargetAsinWeek(_ context.Context, w models.TargetAsinWeek) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := targetAsinKey{w.TargetAsin, w.CampaignRef, w.AdType, day(w.WeekStart)}
	if row, ok := s.targetAsins[k]; ok {
		w.ID = row.ID
	} else if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	w.UpdatedAt = s.now()
	s.targetAsins[k] = &w
	return nil
}

// Lecturas por rango, orden determinista (semana desc).

func (s *MemoryStore) BrandWeeks(_ context.Context, since time.Time) ([]models.BrandWeek, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return collect(s.brandWeeks, since, func(w *models.BrandWeek) time.Time { return w.WeekStart }), nil
}

func (s *MemoryStore) SkuWeeks(_ context.Context, since time.Time) ([]models.SkuWeek, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return collect(s.skuWeeks, since, func(w *models.SkuWeek) time.Time { return w.WeekStart }), nil
}

func (s *MemoryStore) CampaignWeeks(_ context.Context, since time.Time) ([]models.CampaignWeek, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return collect(s.campaignWeeks, since, func(w *models.CampaignWeek) time.Time { return w.WeekStart }), nil
}

func (s *MemoryStore) SearchTermWeeks(_ context.Context, since time.Time) ([]models.SearchTermWeek, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return collect(s.searchTerms, since, func(w *models.SearchTermWeek) time.Time { return w.WeekStart }), nil
}

func (s *MemoryStore) TargetAsinWeeks(_ context.Context, since time.Time) ([]models.TargetAsinWeek, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return collect(s.targetAsins, since, func(w *models.TargetAsinWeek) time.Time { return w.WeekStart }), nil
}

func collect[K comparable, T any](m map[K]*T, since time.Time, week func(*T) time.Time) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		if !since.IsZero() && day(week(v)) < day(since) {
			continue
		}
		out = append(out, *v)
	}
	sort.SliceStable(out, func(i, j int) bool { return week(&out[i]).After(week(&out[j])) })
	return out
}

// alerts

func (s *MemoryStore) OpenAlertExists(_ context.Context, entityType string, entityID uuid.UUID, alertType string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.alerts {
		if a.EntityType == entityType && a.EntityID == entityID && a.Type == alertType && a.ResolvedAt == nil {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) CreateAlert(_ context.Context, a *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	cp := *a
	s.alerts[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteResolvedAlerts(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, a := range s.alerts {
		if a.ResolvedAt != nil && a.ResolvedAt.Before(before) {
			delete(s.alerts, id)
			n++
		}
	}
	return n, nil
}

// Alerts lists every alert, newest first.
func (s *MemoryStore) Alerts() []models.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// settings

func (s *MemoryStore) Settings(context.Context) (models.AccountSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, nil
}

func (s *MemoryStore) TouchLastSync(_ context.Context, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.LastSyncAt = &at
	return nil
}

func (s *MemoryStore) TouchStrategicReport(_ context.Context, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.LastStrategicReportAt = &at
	return nil
}

func day(t time.Time) string {
	return t.Format("2006-01-02")
}
