package models

import (
	"time"

	"github.com/google/uuid"
)

// Brand modes
const (
	ModeLaunch    = "launch"
	ModeGrowth    = "growth"
	ModeProfit    = "profit"
	ModeDefend    = "defend"
	ModeSeasonal  = "seasonal"
	ModeLiquidate = "liquidate"
	ModePause     = "pause"
)

// Placeholder brands used when attribution is not known yet.
const (
	BrandUnknown = "Unknown"
	BrandDefault = "Default"
)

func IsPlaceholderBrand(name string) bool {
	return name == BrandUnknown || name == BrandDefault
}

type Brand struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string    `json:"name"`
	Mode         string    `json:"mode"`
	TacosTarget  float64   `json:"tacos_target"`
	AcosTarget   float64   `json:"acos_target"`
	MinStockDays int       `json:"min_stock_days"`
	CreatedAt    time.Time `json:"created_at"`
}

func (Brand) TableName() string { return "brands" }

type SKU struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SKU              string    `gorm:"column:sku" json:"sku"`
	ASIN             string    `gorm:"column:asin" json:"asin"`
	Title            string    `json:"title"`
	BrandID          uuid.UUID `gorm:"type:uuid" json:"brand_id"`
	ModeOverride     *string   `json:"mode_override,omitempty"`
	TacosOverride    *float64  `json:"tacos_override,omitempty"`
	AcosOverride     *float64  `json:"acos_override,omitempty"`
	MinStockOverride *int      `json:"min_stock_override,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (SKU) TableName() string { return "skus" }

// Campaign.CampaignID is the Amazon id; ID is ours.
type Campaign struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CampaignID    string    `json:"campaign_id"`
	BrandID       uuid.UUID `gorm:"type:uuid" json:"brand_id"`
	Name          string    `json:"name"`
	Type          string    `json:"type"` // SP | SD
	State         string    `json:"state"`
	Budget        float64   `json:"budget"`
	TargetingType string    `json:"targeting_type"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (Campaign) TableName() string { return "campaigns" }

type BrandWeek struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	BrandID      uuid.UUID `gorm:"type:uuid" json:"brand_id"`
	WeekStart    time.Time `gorm:"type:date" json:"week_start"`
	Revenue      float64   `json:"revenue"`
	RevenueExVat float64   `json:"revenue_ex_vat"`
	Units        int       `json:"units"`
	Orders       int       `json:"orders"`
	AdSpend      float64   `json:"ad_spend"`
	AdSales      float64   `json:"ad_sales"`
	Tacos        float64   `json:"tacos"`
	Acos         float64   `json:"acos"`
	Impressions  int       `json:"impressions"`
	Clicks       int       `json:"clicks"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (BrandWeek) TableName() string { return "brand_week" }

type SkuWeek struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SkuID        uuid.UUID `gorm:"type:uuid" json:"sku_id"`
	WeekStart    time.Time `gorm:"type:date" json:"week_start"`
	Revenue      float64   `json:"revenue"`
	RevenueExVat float64   `json:"revenue_ex_vat"`
	Units        int       `json:"units"`
	AdSpend      float64   `json:"ad_spend"`
	AdSales      float64   `json:"ad_sales"`
	AdOrders     int       `json:"ad_orders"`
	Impressions  int       `json:"impressions"`
	Clicks       int       `json:"clicks"`
	Tacos        float64   `json:"tacos"`
	Acos         float64   `json:"acos"`
	CTR          float64   `gorm:"column:ctr" json:"ctr"`
	CPC          float64   `gorm:"column:cpc" json:"cpc"`
	CVR          float64   `gorm:"column:cvr" json:"cvr"`
	StockLevel   int       `json:"stock_level"`
	StockDays    float64   `json:"stock_days"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (SkuWeek) TableName() string { return "sku_week" }

type CampaignWeek struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CampaignID  uuid.UUID `gorm:"type:uuid" json:"campaign_id"`
	WeekStart   time.Time `gorm:"type:date" json:"week_start"`
	Impressions int       `json:"impressions"`
	Clicks      int       `json:"clicks"`
	Spend       float64   `json:"spend"`
	Sales       float64   `json:"sales"`
	Orders      int       `json:"orders"`
	Acos        float64   `json:"acos"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (CampaignWeek) TableName() string { return "campaign_week" }

// CampaignRef holds the Amazon campaign id ("unknown" when the report has
// none) so the natural key never contains NULL.
type SearchTermWeek struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Term        string     `json:"term"`
	CampaignRef string     `json:"campaign_ref"`
	CampaignID  *uuid.UUID `gorm:"type:uuid" json:"campaign_id"`
	BrandID     uuid.UUID  `gorm:"type:uuid" json:"brand_id"`
	WeekStart   time.Time  `gorm:"type:date" json:"week_start"`
	Impressions int        `json:"impressions"`
	Clicks      int        `json:"clicks"`
	Spend       float64    `json:"spend"`
	Sales       float64    `json:"sales"`
	Orders      int        `json:"orders"`
	Acos        float64    `json:"acos"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (SearchTermWeek) TableName() string { return "searchterm_week" }

type TargetAsinWeek struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	TargetAsin  string     `json:"target_asin"`
	CampaignRef string     `json:"campaign_ref"`
	AdType      string     `json:"ad_type"`
	CampaignID  *uuid.UUID `gorm:"type:uuid" json:"campaign_id"`
	BrandID     uuid.UUID  `gorm:"type:uuid" json:"brand_id"`
	WeekStart   time.Time  `gorm:"type:date" json:"week_start"`
	Impressions int        `json:"impressions"`
	Clicks      int        `json:"clicks"`
	Spend       float64    `json:"spend"`
	Sales       float64    `json:"sales"`
	Orders      int        `json:"orders"`
	Acos        float64    `json:"acos"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (TargetAsinWeek) TableName() string { return "target_asin_week" }

// Alert types, levels and entity kinds
const (
	AlertStock   = "stock"
	AlertTacos   = "tacos"
	AlertBudget  = "budget"
	AlertGeneral = "general"

	LevelCritical = "critical"
	LevelWarning  = "warning"
	LevelInfo     = "info"

	EntitySKU   = "sku"
	EntityBrand = "brand"
)

type Alert struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Type       string     `json:"type"`
	EntityType string     `json:"entity_type"`
	EntityID   uuid.UUID  `gorm:"type:uuid" json:"entity_id"`
	Message    string     `json:"message"`
	Level      string     `json:"level"`
	SentAt     *time.Time `json:"sent_at"`
	ResolvedAt *time.Time `json:"resolved_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (Alert) TableName() string { return "alerts" }

type AccountSettings struct {
	ID                    int        `gorm:"primaryKey" json:"id"`
	VatRate               float64    `json:"vat_rate"`
	Currency              string     `json:"currency"`
	Timezone              string     `json:"timezone"`
	DefaultTacosTarget    float64    `json:"default_tacos_target"`
	DefaultAcosTarget     float64    `json:"default_acos_target"`
	LastSyncAt            *time.Time `json:"last_sync_at"`
	LastStrategicReportAt *time.Time `json:"last_strategic_report_at"`
}

func (AccountSettings) TableName() string { return "account_settings" }
