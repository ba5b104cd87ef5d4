package models

import (
	"regexp"
	"strings"
	"time"
)

// FlexID accepts ids sent either as JSON numbers or strings.
type FlexID string

func (f *FlexID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "null" {
		s = ""
	}
	*f = FlexID(s)
	return nil
}

func (f FlexID) String() string { return string(f) }

// Filas crudas de los reportes de Ads (v3, GZIP_JSON).

type CampaignPerformanceRow struct {
	Date         string  `json:"date"`
	CampaignID   FlexID  `json:"campaignId"`
	CampaignName string  `json:"campaignName"`
	Impressions  int     `json:"impressions"`
	Clicks       int     `json:"clicks"`
	Cost         float64 `json:"cost"`
	Sales14d     float64 `json:"sales14d"`
}

type AdvertisedProductRow struct {
	Date           string  `json:"date"`
	AdvertisedAsin string  `json:"advertisedAsin"`
	AdvertisedSku  string  `json:"advertisedSku"`
	CampaignID     FlexID  `json:"campaignId"`
	Impressions    int     `json:"impressions"`
	Clicks         int     `json:"clicks"`
	Cost           float64 `json:"cost"`
	Sales14d       float64 `json:"sales14d"`
	Purchases14d   int     `json:"purchases14d"`
}

type SearchTermRow struct {
	Date         string  `json:"date"`
	CampaignID   FlexID  `json:"campaignId"`
	CampaignName string  `json:"campaignName"`
	AdGroupID    FlexID  `json:"adGroupId"`
	AdGroupName  string  `json:"adGroupName"`
	SearchTerm   string  `json:"searchTerm"`
	Impressions  int     `json:"impressions"`
	Clicks       int     `json:"clicks"`
	Cost         float64 `json:"cost"`
	Sales14d     float64 `json:"sales14d"`
	Purchases14d int     `json:"purchases14d"`
}

// TargetingRow covers both SP (targeting, sales14d) and SD
// (targetingExpression, sales) targeting reports.
type TargetingRow struct {
	Date                string  `json:"date"`
	CampaignID          FlexID  `json:"campaignId"`
	CampaignName        string  `json:"campaignName"`
	Targeting           string  `json:"targeting"`
	TargetingExpression string  `json:"targetingExpression"`
	Impressions         int     `json:"impressions"`
	Clicks              int     `json:"clicks"`
	Cost                float64 `json:"cost"`
	Sales14d            float64 `json:"sales14d"`
	Purchases14d        int     `json:"purchases14d"`
	Sales               float64 `json:"sales"`
	Purchases           int     `json:"purchases"`
}

var targetAsinRe = regexp.MustCompile(`(?i)asin[=:]"?([A-Z0-9]+)"?`)

// TargetASIN returns the ASIN of a product-targeting expression such as
// asin="B0123XYZ", or "" for any other kind of target.
func (r TargetingRow) TargetASIN() string {
	expr := r.Targeting
	if expr == "" {
		expr = r.TargetingExpression
	}
	if !strings.Contains(expr, "asin") {
		return ""
	}
	m := targetAsinRe.FindStringSubmatch(expr)
	if len(m) < 2 {
		return ""
	}
	return strings.ToUpper(m[1])
}

// SalesAndOrders picks the attribution columns each ad type reports.
func (r TargetingRow) SalesAndOrders() (float64, int) {
	if r.Sales14d != 0 || r.Purchases14d != 0 {
		return r.Sales14d, r.Purchases14d
	}
	return r.Sales, r.Purchases
}

// Filas de SP-API.

type OrderLine struct {
	OrderID      string
	PurchaseDate time.Time
	SKU          string
	ASIN         string
	Title        string
	Quantity     int
	ItemPrice    float64
}

type Listing struct {
	SKU      string
	ASIN     string
	Name     string
	Price    string
	Channel  string
	Status   string
	Quantity int
}

type InventoryItem struct {
	SKU         string
	ASIN        string
	Name        string
	Fulfillable int
}

// CampaignInfo is a campaign as listed by the SP/SD campaign endpoints.
type CampaignInfo struct {
	CampaignID    string
	Name          string
	Type          string
	State         string
	Budget        float64
	TargetingType string
}
