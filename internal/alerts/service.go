package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/AngelCh415/amazon-brain/internal/aggregate"
	"github.com/AngelCh415/amazon-brain/internal/metrics"
	"github.com/AngelCh415/amazon-brain/internal/models"
	"github.com/AngelCh415/amazon-brain/internal/notify"
)

const (
	ReportEvery         = 5 // días entre reportes estratégicos
	DefaultMinStockDays = 14
	DefaultTacosTarget  = 15
	CleanupAfter        = 30 * 24 * time.Hour
)

type Repository interface {
	Brands(ctx context.Context) ([]models.Brand, error)
	SKUs(ctx context.Context) ([]models.SKU, error)
	BrandWeeks(ctx context.Context, since time.Time) ([]models.BrandWeek, error)
	SkuWeeks(ctx context.Context, since time.Time) ([]models.SkuWeek, error)
	OpenAlertExists(ctx context.Context, entityType string, entityID uuid.UUID, alertType string) (bool, error)
	CreateAlert(ctx context.Context, a *models.Alert) error
	DeleteResolvedAlerts(ctx context.Context, before time.Time) (int64, error)
	Settings(ctx context.Context) (models.AccountSettings, error)
	TouchStrategicReport(ctx context.Context, at time.Time) error
}

type Notifier interface {
	Enabled() bool
	Send(ctx context.Context, m notify.Message) error
}

// Result is what one cron pass did.
type Result struct {
	ReportSent  bool  `json:"report_sent"`
	StockAlerts int   `json:"stock_alerts"`
	TacosAlerts int   `json:"tacos_alerts"`
	Cleaned     int64 `json:"cleaned"`
}

type Service struct {
	repo   Repository
	notify Notifier
	cal    aggregate.Calendar
	log    *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, n Notifier, cal aggregate.Calendar, log *slog.Logger) *Service {
	return &Service{repo: repo, notify: n, cal: cal, log: log, now: time.Now}
}

// Run is the cron pass: strategic report when due, stock and TACoS alerts
// for the current week, then cleanup of old resolved alerts.
func (s *Service) Run(ctx context.Context) (Result, error) {
	var res Result
	now := s.now()
	snap, err := s.load(ctx, now)
	if err != nil {
		return res, err
	}

	if res.ReportSent, err = s.strategicReport(ctx, now, snap); err != nil {
		return res, fmt.Errorf("strategic report: %w", err)
	}
	if res.StockAlerts, err = s.stockAlerts(ctx, snap); err != nil {
		return res, fmt.Errorf("stock alerts: %w", err)
	}
	if res.TacosAlerts, err = s.tacosAlerts(ctx, snap); err != nil {
		return res, fmt.Errorf("tacos alerts: %w", err)
	}
	if res.Cleaned, err = s.repo.DeleteResolvedAlerts(ctx, now.Add(-CleanupAfter)); err != nil {
		return res, fmt.Errorf("cleanup alerts: %w", err)
	}
	s.log.Info("cron done",
		slog.Bool("report_sent", res.ReportSent),
		slog.Int("stock_alerts", res.StockAlerts),
		slog.Int("tacos_alerts", res.TacosAlerts),
		slog.Int64("cleaned", res.Cleaned))
	return res, nil
}

// snapshot is the current and previous week with their joins.
type snapshot struct {
	settings models.AccountSettings
	week     time.Time
	brands   map[uuid.UUID]models.Brand
	skus     map[uuid.UUID]models.SKU
	current  []models.BrandWeek
	previous []models.BrandWeek
	skuWeeks []models.SkuWeek
}

func (s *Service) load(ctx context.Context, now time.Time) (snapshot, error) {
	snap := snapshot{
		week:   s.cal.WeekStart(now),
		brands: map[uuid.UUID]models.Brand{},
		skus:   map[uuid.UUID]models.SKU{},
	}
	prev := s.cal.WeekStart(now.AddDate(0, 0, -7))
	var err error
	if snap.settings, err = s.repo.Settings(ctx); err != nil {
		return snap, fmt.Errorf("settings: %w", err)
	}
	brands, err := s.repo.Brands(ctx)
	if err != nil {
		return snap, fmt.Errorf("brands: %w", err)
	}
	for _, b := range brands {
		snap.brands[b.ID] = b
	}
	skus, err := s.repo.SKUs(ctx)
	if err != nil {
		return snap, fmt.Errorf("skus: %w", err)
	}
	for _, k := range skus {
		snap.skus[k.ID] = k
	}
	bw, err := s.repo.BrandWeeks(ctx, prev)
	if err != nil {
		return snap, fmt.Errorf("brand weeks: %w", err)
	}
	cur, prevDay := aggregate.FormatDay(snap.week), aggregate.FormatDay(prev)
	for _, w := range bw {
		switch aggregate.FormatDay(w.WeekStart) {
		case cur:
			snap.current = append(snap.current, w)
		case prevDay:
			snap.previous = append(snap.previous, w)
		}
	}
	sw, err := s.repo.SkuWeeks(ctx, snap.week)
	if err != nil {
		return snap, fmt.Errorf("sku weeks: %w", err)
	}
	for _, w := range sw {
		if aggregate.FormatDay(w.WeekStart) == cur {
			snap.skuWeeks = append(snap.skuWeeks, w)
		}
	}
	return snap, nil
}

func (snap snapshot) tacosTarget(brandID uuid.UUID) float64 {
	if t := snap.brands[brandID].TacosTarget; t > 0 {
		return t
	}
	return DefaultTacosTarget
}

// minStockDays resolves the SKU override, then the brand, then the default.
func (snap snapshot) minStockDays(k models.SKU) float64 {
	if k.MinStockOverride != nil && *k.MinStockOverride > 0 {
		return float64(*k.MinStockOverride)
	}
	if d := snap.brands[k.BrandID].MinStockDays; d > 0 {
		return float64(d)
	}
	return DefaultMinStockDays
}

type lowStock struct {
	sku   models.SKU
	days  float64
	floor float64
}

func (snap snapshot) lowStock() []lowStock {
	var out []lowStock
	for _, w := range snap.skuWeeks {
		k, ok := snap.skus[w.SkuID]
		if !ok {
			continue
		}
		if floor := snap.minStockDays(k); w.StockDays < floor {
			out = append(out, lowStock{sku: k, days: w.StockDays, floor: floor})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].sku.SKU < out[j].sku.SKU })
	return out
}

func (s *Service) stockAlerts(ctx context.Context, snap snapshot) (int, error) {
	n := 0
	for _, ls := range snap.lowStock() {
		level := models.LevelWarning
		if ls.days < ls.floor/2 {
			level = models.LevelCritical
		}
		msg := fmt.Sprintf("%s has %d days of stock remaining", ls.sku.SKU, int(math.Round(ls.days)))
		created, err := s.raise(ctx, models.AlertStock, models.EntitySKU, ls.sku.ID, level, msg)
		if err != nil {
			return n, err
		}
		if created {
			n++
		}
	}
	return n, nil
}

func (s *Service) tacosAlerts(ctx context.Context, snap snapshot) (int, error) {
	n := 0
	for _, w := range snap.current {
		target := snap.tacosTarget(w.BrandID)
		if w.Tacos <= target {
			continue
		}
		level := models.LevelWarning
		if w.Tacos > target*1.5 {
			level = models.LevelCritical
		}
		msg := fmt.Sprintf("%s TACoS at %.1f%% - exceeds %s%% target by %.1f%%",
			snap.brands[w.BrandID].Name, w.Tacos, strconv.FormatFloat(target, 'f', -1, 64), w.Tacos-target)
		created, err := s.raise(ctx, models.AlertTacos, models.EntityBrand, w.BrandID, level, msg)
		if err != nil {
			return n, err
		}
		if created {
			n++
		}
	}
	return n, nil
}

// raise creates the alert unless an unresolved one exists for the entity.
func (s *Service) raise(ctx context.Context, typ, entityType string, id uuid.UUID, level, msg string) (bool, error) {
	open, err := s.repo.OpenAlertExists(ctx, entityType, id, typ)
	if err != nil {
		return false, err
	}
	if open {
		return false, nil
	}
	a := &models.Alert{Type: typ, EntityType: entityType, EntityID: id, Level: level, Message: msg}
	if err := s.repo.CreateAlert(ctx, a); err != nil {
		return false, err
	}
	metrics.AlertsCreated.WithLabelValues(typ, level).Inc()
	s.log.Info("alert raised", slog.String("type", typ), slog.String("level", level), slog.String("message", msg))
	return true, nil
}

func (s *Service) reportDue(now time.Time, set models.AccountSettings) bool {
	if set.LastStrategicReportAt == nil {
		return true
	}
	days := int(now.Sub(*set.LastStrategicReportAt) / (24 * time.Hour))
	return days >= ReportEvery
}

// strategicReport builds and emails the digest when due. The report date
// moves even when no sender is configured or the send fails.
func (s *Service) strategicReport(ctx context.Context, now time.Time, snap snapshot) (bool, error) {
	if !s.reportDue(now, snap.settings) {
		return false, nil
	}
	sent := false
	switch {
	case s.notify == nil || !s.notify.Enabled():
		s.log.Info("strategic report due, no email sender configured")
	default:
		msg := buildReport(now.In(s.calLoc()), snap)
		if err := s.notify.Send(ctx, msg); err != nil {
			s.log.Error("strategic report email failed", slog.Any("err", err))
		} else {
			sent = true
		}
	}
	return sent, s.repo.TouchStrategicReport(ctx, now)
}

func (s *Service) calLoc() *time.Location {
	if s.cal.Loc != nil {
		return s.cal.Loc
	}
	return time.UTC
}

func sum(rows []models.BrandWeek, f func(models.BrandWeek) float64) float64 {
	var t float64
	for _, r := range rows {
		t += f(r)
	}
	return t
}

func change(cur, prev float64) float64 {
	if prev <= 0 {
		return 0
	}
	return (cur - prev) / prev * 100
}

func buildReport(now time.Time, snap snapshot) notify.Message {
	p := message.NewPrinter(language.English)
	currency := snap.settings.Currency
	if currency == "" {
		currency = "AED"
	}
	var b strings.Builder

	rev := sum(snap.current, func(w models.BrandWeek) float64 { return w.RevenueExVat })
	prevRev := sum(snap.previous, func(w models.BrandWeek) float64 { return w.RevenueExVat })
	spend := sum(snap.current, func(w models.BrandWeek) float64 { return w.AdSpend })
	prevSpend := sum(snap.previous, func(w models.BrandWeek) float64 { return w.AdSpend })

	b.WriteString("## What Happened This Week\n\n")
	fmt.Fprintf(&b, "- **Revenue**: %s %s (%+.1f%% vs last week)\n", currency, p.Sprintf("%.2f", rev), change(rev, prevRev))
	fmt.Fprintf(&b, "- **Ad Spend**: %s %s (%+.1f%% vs last week)\n", currency, p.Sprintf("%.2f", spend), change(spend, prevSpend))

	b.WriteString("\n## Suggestions\n\n")
	var suggestions int
	current := append([]models.BrandWeek(nil), snap.current...)
	sort.Slice(current, func(i, j int) bool {
		return snap.brands[current[i].BrandID].Name < snap.brands[current[j].BrandID].Name
	})
	for _, w := range current {
		target := snap.tacosTarget(w.BrandID)
		if w.Tacos > target*1.2 {
			fmt.Fprintf(&b, "- **%s**: TACoS at %.1f%% (target: %s%%). Consider reducing ad spend or switching to Profit mode.\n",
				snap.brands[w.BrandID].Name, w.Tacos, strconv.FormatFloat(target, 'f', -1, 64))
			suggestions++
		}
	}
	if low := snap.lowStock(); len(low) > 0 {
		fmt.Fprintf(&b, "- **Reorder Alert**: %d SKU(s) need reordering soon.\n", len(low))
		suggestions++
	}
	if suggestions == 0 {
		b.WriteString("No immediate actions needed.\n")
	}

	b.WriteString("\n## Tips\n\n")
	if top, ok := topBrand(snap); ok {
		fmt.Fprintf(&b, "- **%s** led revenue this week with %s %s.\n", top.name, currency, p.Sprintf("%.2f", top.revenue))
	}
	if spend > 0 && rev > 0 {
		fmt.Fprintf(&b, "- Account TACoS this week: %.1f%%.\n", aggregate.TACoS(spend, rev))
	}
	if len(snap.current) == 0 {
		b.WriteString("- No sales recorded yet this week; check that the last sync ran.\n")
	}
	b.WriteString("\n---\nAmazon Brain - Your Seller Analytics Dashboard\n")

	return notify.Message{
		Subject: "Amazon Brain Strategic Report - " + now.Format("1/2/2006"),
		Text:    b.String(),
	}
}

type brandRevenue struct {
	name    string
	revenue float64
}

func topBrand(snap snapshot) (brandRevenue, bool) {
	var top brandRevenue
	found := false
	for _, w := range snap.current {
		name := snap.brands[w.BrandID].Name
		if !found || w.RevenueExVat > top.revenue || (w.RevenueExVat == top.revenue && name < top.name) {
			top = brandRevenue{name, w.RevenueExVat}
			found = true
		}
	}
	return top, found && top.revenue > 0
}
