package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/AngelCh415/amazon-brain/internal/models"
	"github.com/AngelCh415/amazon-brain/internal/utils"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

type PostgresStore struct {
	db *gorm.DB
}

var _ Store = (*PostgresStore)(nil)

// Connect opens the pool and pings it, retrying with backoff while the
// database comes up.
func Connect(ctx context.Context, databaseURL string, maxConns int) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	if maxConns > 0 {
		sqlDB.SetMaxOpenConns(maxConns)
		sqlDB.SetMaxIdleConns(maxConns / 2)
	}
	sqlDB.SetConnMaxIdleTime(15 * time.Minute)
	sqlDB.SetConnMaxLifetime(time.Hour)

	err = utils.NewBackoff(500*time.Millisecond, 4).Do(ctx, func(int) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return sqlDB.PingContext(pingCtx)
	})
	if err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// RunMigrations applies the embedded SQL files in name order. Every file is
// idempotent. Files hold several statements and run on the plain pool;
// Postgres rejects multi-command prepared statements.
func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("gorm sql db: %w", err)
	}
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		raw, readErr := migrationFS.ReadFile("migrations/" + name)
		if readErr != nil {
			return fmt.Errorf("read migration %s: %w", name, readErr)
		}
		if _, execErr := sqlDB.ExecContext(ctx, string(raw)); execErr != nil {
			return fmt.Errorf("exec migration %s: %w", name, execErr)
		}
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func cols(names ...string) []clause.Column {
	out := make([]clause.Column, len(names))
	for i, n := range names {
		out[i] = clause.Column{Name: n}
	}
	return out
}

// brands

func (s *PostgresStore) EnsureBrand(ctx context.Context, name string) (models.Brand, error) {
	b := newBrand(name)
	b.CreatedAt = time.Now()
	db := s.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{Columns: cols("name"), DoNothing: true}).Create(&b).Error; err != nil {
		return models.Brand{}, fmt.Errorf("ensure brand %q: %w", name, err)
	}
	var out models.Brand
	if err := db.Where("name = ?", name).Take(&out).Error; err != nil {
		return models.Brand{}, fmt.Errorf("load brand %q: %w", name, notFound(err))
	}
	return out, nil
}

func (s *PostgresStore) BrandByID(ctx context.Context, id uuid.UUID) (models.Brand, error) {
	var out models.Brand
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&out).Error
	return out, notFound(err)
}

func (s *PostgresStore) Brands(ctx context.Context) ([]models.Brand, error) {
	var out []models.Brand
	err := s.db.WithContext(ctx).Order("name").Find(&out).Error
	return out, err
}

// skus

func (s *PostgresStore) SKUBySKU(ctx context.Context, sku string) (models.SKU, error) {
	var out models.SKU
	err := s.db.WithContext(ctx).Where("sku = ?", sku).Take(&out).Error
	return out, notFound(err)
}

func (s *PostgresStore) SKUByASIN(ctx context.Context, asin string) (models.SKU, error) {
	var out models.SKU
	err := s.db.WithContext(ctx).Where("asin = ?", asin).Order("sku").Take(&out).Error
	return out, notFound(err)
}

func (s *PostgresStore) SaveSKU(ctx context.Context, in *models.SKU) error {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	db := s.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:   cols("sku"),
		DoUpdates: clause.AssignmentColumns([]string{"asin", "title", "brand_id", "updated_at"}),
	}).Create(in).Error
	if err != nil {
		return fmt.Errorf("save sku %q: %w", in.SKU, err)
	}
	return db.Where("sku = ?", in.SKU).Take(in).Error
}

func (s *PostgresStore) SKUs(ctx context.Context) ([]models.SKU, error) {
	var out []models.SKU
	err := s.db.WithContext(ctx).Order("sku").Find(&out).Error
	return out, err
}

// campaigns

func (s *PostgresStore) CampaignByExternalID(ctx context.Context, campaignID string) (models.Campaign, error) {
	var out models.Campaign
	err := s.db.WithContext(ctx).Where("campaign_id = ?", campaignID).Take(&out).Error
	return out, notFound(err)
}

func (s *PostgresStore) SaveCampaign(ctx context.Context, in *models.Campaign) error {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	db := s.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:   cols("campaign_id"),
		DoUpdates: clause.AssignmentColumns([]string{"brand_id", "name", "type", "state", "budget", "targeting_type", "updated_at"}),
	}).Create(in).Error
	if err != nil {
		return fmt.Errorf("save campaign %s: %w", in.CampaignID, err)
	}
	return db.Where("campaign_id = ?", in.CampaignID).Take(in).Error
}

func (s *PostgresStore) Campaigns(ctx context.Context) ([]models.Campaign, error) {
	var out []models.Campaign
	err := s.db.WithContext(ctx).Order("name").Find(&out).Error
	return out, err
}

// weekly facts: one statement per bucket, only the owned columns change.

func (s *PostgresStore) UpsertBrandSales(ctx context.Context, w models.BrandWeek) error {
	w.ID = uuid.New()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   cols("brand_id", "week_start"),
		DoUpdates: clause.AssignmentColumns([]string{"revenue", "revenue_ex_vat", "units", "orders", "updated_at"}),
	}).Create(&w).Error
}

func (s *PostgresStore) BrandWeekRevenue(ctx context.Context, brandID uuid.UUID, week time.Time) (float64, error) {
	var row models.BrandWeek
	err := s.db.WithContext(ctx).Select("revenue").
		Where("brand_id = ? AND week_start = ?", brandID, week).Take(&row).Error
	return row.Revenue, notFound(err)
}

func (s *PostgresStore) UpdateBrandAds(ctx context.Context, w models.BrandWeek) error {
	res := s.db.WithContext(ctx).Model(&models.BrandWeek{}).
		Where("brand_id = ? AND week_start = ?", w.BrandID, w.WeekStart).
		Updates(map[string]any{
			"ad_spend":    w.AdSpend,
			"ad_sales":    w.AdSales,
			"impressions": w.Impressions,
			"clicks":      w.Clicks,
			"tacos":       w.Tacos,
			"acos":        w.Acos,
			"updated_at":  time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpsertSkuSales(ctx context.Context, w models.SkuWeek) error {
	w.ID = uuid.New()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   cols("sku_id", "week_start"),
		DoUpdates: clause.AssignmentColumns([]string{"revenue", "revenue_ex_vat", "units", "updated_at"}),
	}).Create(&w).Error
}

func (s *PostgresStore) UpsertSkuStock(ctx context.Context, w models.SkuWeek) error {
	w.ID = uuid.New()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   cols("sku_id", "week_start"),
		DoUpdates: clause.AssignmentColumns([]string{"stock_level", "stock_days", "updated_at"}),
	}).Create(&w).Error
}

func (s *PostgresStore) SkuWeekRevenue(ctx context.Context, skuID uuid.UUID, week time.Time) (float64, error) {
	var row models.SkuWeek
	err := s.db.WithContext(ctx).Select("revenue").
		Where("sku_id = ? AND week_start = ?", skuID, week).Take(&row).Error
	return row.Revenue, notFound(err)
}

func (s *PostgresStore) UpdateSkuAds(ctx context.Context, w models.SkuWeek) error {
	res := s.db.WithContext(ctx).Model(&models.SkuWeek{}).
		Where("sku_id = ? AND week_start = ?", w.SkuID, w.WeekStart).
		Updates(map[string]any{
			"ad_spend":    w.AdSpend,
			"ad_sales":    w.AdSales,
			"ad_orders":   w.AdOrders,
			"impressions": w.Impressions,
			"clicks":      w.Clicks,
			"tacos":       w.Tacos,
			"acos":        w.Acos,
			"ctr":         w.CTR,
			"cpc":         w.CPC,
			"cvr":         w.CVR,
			"updated_at":  time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

var adColumns = []string{"impressions", "clicks", "spend", "sales", "orders", "acos", "updated_at"}

func (s *PostgresStore) UpsertCampaignWeek(ctx context.Context, w models.CampaignWeek) error {
	w.ID = uuid.New()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   cols("campaign_id", "week_start"),
		DoUpdates: clause.AssignmentColumns(adColumns),
	}).Create(&w).Error
}

func (s *PostgresStore) UpsertSearchTermWeek(ctx context.Context, w models.SearchTermWeek) error {
	w.ID = uuid.New()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   cols("term", "campaign_ref", "week_start"),
		DoUpdates: clause.AssignmentColumns(append([]string{"campaign_id", "brand_id"}, adColumns...)),
	}).Create(&w).Error
}

func (s *PostgresStore) UpsertTargetAsinWeek(ctx context.Context, w models.TargetAsinWeek) error {
	w.ID = uuid.New()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   cols("target_asin", "campaign_ref", "ad_type", "week_start"),
		DoUpdates: clause.AssignmentColumns(append([]string{"campaign_id", "brand_id"}, adColumns...)),
	}).Create(&w).Error
}

func since(db *gorm.DB, t time.Time) *gorm.DB {
	if !t.IsZero() {
		db = db.Where("week_start >= ?", t)
	}
	return db.Order("week_start DESC")
}

func (s *PostgresStore) BrandWeeks(ctx context.Context, from time.Time) ([]models.BrandWeek, error) {
	var out []models.BrandWeek
	err := since(s.db.WithContext(ctx), from).Find(&out).Error
	return out, err
}

func (s *PostgresStore) SkuWeeks(ctx context.Context, from time.Time) ([]models.SkuWeek, error) {
	var out []models.SkuWeek
	err := since(s.db.WithContext(ctx), from).Find(&out).Error
	return out, err
}

func (s *PostgresStore) CampaignWeeks(ctx context.Context, from time.Time) ([]models.CampaignWeek, error) {
	var out []models.CampaignWeek
	err := since(s.db.WithContext(ctx), from).Find(&out).Error
	return out, err
}

func (s *PostgresStore) SearchTermWeeks(ctx context.Context, from time.Time) ([]models.SearchTermWeek, error) {
	var out []models.SearchTermWeek
	err := since(s.db.WithContext(ctx), from).Find(&out).Error
	return out, err
}

func (s *PostgresStore) TargetAsinWeeks(ctx context.Context, from time.Time) ([]models.TargetAsinWeek, error) {
	var out []models.TargetAsinWeek
	err := since(s.db.WithContext(ctx), from).Find(&out).Error
	return out, err
}

// alerts

func (s *PostgresStore) OpenAlertExists(ctx context.Context, entityType string, entityID uuid.UUID, alertType string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Alert{}).
		Where("entity_type = ? AND entity_id = ? AND type = ? AND resolved_at IS NULL", entityType, entityID, alertType).
		Count(&n).Error
	return n > 0, err
}

func (s *PostgresStore) CreateAlert(ctx context.Context, a *models.Alert) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return s.db.WithContext(ctx).Create(a).Error
}

func (s *PostgresStore) DeleteResolvedAlerts(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("resolved_at IS NOT NULL AND resolved_at < ?", before).
		Delete(&models.Alert{})
	return res.RowsAffected, res.Error
}

// settings

func (s *PostgresStore) Settings(ctx context.Context) (models.AccountSettings, error) {
	var out models.AccountSettings
	err := s.db.WithContext(ctx).Order("id").Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DefaultSettings(), nil
	}
	return out, err
}

func (s *PostgresStore) TouchLastSync(ctx context.Context, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.AccountSettings{}).
		Where("id IS NOT NULL").Update("last_sync_at", at).Error
}

func (s *PostgresStore) TouchStrategicReport(ctx context.Context, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.AccountSettings{}).
		Where("id IS NOT NULL").Update("last_strategic_report_at", at).Error
}
