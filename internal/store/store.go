package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/AngelCh415/amazon-brain/internal/models"
)

var ErrNotFound = errors.New("not found")

// Store is the full persistence contract. Callers depend on the narrower
// interfaces they declare; MemoryStore and PostgresStore implement all of it.
type Store interface {
	EnsureBrand(ctx context.Context, name string) (models.Brand, error)
	BrandByID(ctx context.Context, id uuid.UUID) (models.Brand, error)
	Brands(ctx context.Context) ([]models.Brand, error)

	SKUBySKU(ctx context.Context, sku string) (models.SKU, error)
	SKUByASIN(ctx context.Context, asin string) (models.SKU, error)
	SaveSKU(ctx context.Context, s *models.SKU) error
	SKUs(ctx context.Context) ([]models.SKU, error)

	CampaignByExternalID(ctx context.Context, campaignID string) (models.Campaign, error)
	SaveCampaign(ctx context.Context, c *models.Campaign) error
	Campaigns(ctx context.Context) ([]models.Campaign, error)

	UpsertBrandSales(ctx context.Context, w models.BrandWeek) error
	BrandWeekRevenue(ctx context.Context, brandID uuid.UUID, week time.Time) (float64, error)
	UpdateBrandAds(ctx context.Context, w models.BrandWeek) error
	UpsertSkuSales(ctx context.Context, w models.SkuWeek) error
	UpsertSkuStock(ctx context.Context, w models.SkuWeek) error
	SkuWeekRevenue(ctx context.Context, skuID uuid.UUID, week time.Time) (float64, error)
	UpdateSkuAds(ctx context.Context, w models.SkuWeek) error
	UpsertCampaignWeek(ctx context.Context, w models.CampaignWeek) error
	UpsertSearchTermWeek(ctx context.Context, w models.SearchTermWeek) error
	UpsertTargetAsinWeek(ctx context.Context, w models.TargetAsinWeek) error

	BrandWeeks(ctx context.Context, since time.Time) ([]models.BrandWeek, error)
	SkuWeeks(ctx context.Context, since time.Time) ([]models.SkuWeek, error)
	CampaignWeeks(ctx context.Context, since time.Time) ([]models.CampaignWeek, error)
	SearchTermWeeks(ctx context.Context, since time.Time) ([]models.SearchTermWeek, error)
	TargetAsinWeeks(ctx context.Context, since time.Time) ([]models.TargetAsinWeek, error)

	OpenAlertExists(ctx context.Context, entityType string, entityID uuid.UUID, alertType string) (bool, error)
	CreateAlert(ctx context.Context, a *models.Alert) error
	DeleteResolvedAlerts(ctx context.Context, before time.Time) (int64, error)

	Settings(ctx context.Context) (models.AccountSettings, error)
	TouchLastSync(ctx context.Context, at time.Time) error
	TouchStrategicReport(ctx context.Context, at time.Time) error

	Ping(ctx context.Context) error
}

// DefaultSettings is the row seeded on first use.
func DefaultSettings() models.AccountSettings {
	return models.AccountSettings{
		ID:                 1,
		VatRate:            5,
		Currency:           "AED",
		Timezone:           "UTC",
		DefaultTacosTarget: 15,
		DefaultAcosTarget:  25,
	}
}

func newBrand(name string) models.Brand {
	return models.Brand{
		ID:           uuid.New(),
		Name:         name,
		Mode:         models.ModeGrowth,
		TacosTarget:  15,
		AcosTarget:   25,
		MinStockDays: 14,
	}
}
