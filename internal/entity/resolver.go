package entity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/AngelCh415/amazon-brain/internal/models"
	"github.com/AngelCh415/amazon-brain/internal/store"
)

const maxTitleLen = 150

var campaignASINRe = regexp.MustCompile(`B0[A-Z0-9]{8,9}`)

type Repository interface {
	EnsureBrand(ctx context.Context, name string) (models.Brand, error)
	BrandByID(ctx context.Context, id uuid.UUID) (models.Brand, error)
	SKUBySKU(ctx context.Context, sku string) (models.SKU, error)
	SKUByASIN(ctx context.Context, asin string) (models.SKU, error)
	SaveSKU(ctx context.Context, s *models.SKU) error
	CampaignByExternalID(ctx context.Context, campaignID string) (models.Campaign, error)
}

// Resolver maps natural keys to ids, creating brands and SKUs on first
// sight. Its caches live for one sync run; it is not safe for concurrent
// use.
type Resolver struct {
	repo Repository
	log  *slog.Logger

	brandIDs   map[string]uuid.UUID
	brandNames map[uuid.UUID]string
	skuBrand   map[string]string
}

func NewResolver(repo Repository, log *slog.Logger) *Resolver {
	return &Resolver{
		repo:       repo,
		log:        log,
		brandIDs:   make(map[string]uuid.UUID),
		brandNames: make(map[uuid.UUID]string),
		skuBrand:   make(map[string]string),
	}
}

// ResolveBrand returns the id of the brand called name, creating it in
// growth mode if needed. A blank name resolves to models.BrandUnknown.
func (r *Resolver) ResolveBrand(ctx context.Context, name string) (uuid.UUID, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = models.BrandUnknown
	}
	if id, ok := r.brandIDs[name]; ok {
		return id, nil
	}
	b, err := r.repo.EnsureBrand(ctx, name)
	if err != nil {
		return uuid.Nil, fmt.Errorf("resolve brand %q: %w", name, err)
	}
	r.brandIDs[name] = b.ID
	r.brandNames[b.ID] = b.Name
	return b.ID, nil
}

func (r *Resolver) brandName(ctx context.Context, id uuid.UUID) string {
	if n, ok := r.brandNames[id]; ok {
		return n
	}
	b, err := r.repo.BrandByID(ctx, id)
	if err != nil {
		return ""
	}
	r.brandNames[id] = b.Name
	r.brandIDs[b.Name] = id
	return b.Name
}

func (r *Resolver) isPlaceholder(ctx context.Context, id uuid.UUID) bool {
	n := r.brandName(ctx, id)
	return n == "" || models.IsPlaceholderBrand(n)
}

// ResolveSKU returns the id of sku, creating it if absent. An existing SKU
// moves to brandID unless brandID is a placeholder and the stored brand
// is real.
func (r *Resolver) ResolveSKU(ctx context.Context, sku, asin, title string, brandID uuid.UUID) (uuid.UUID, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return uuid.Nil, errors.New("resolve sku: empty sku")
	}
	title = TruncateTitle(title)

	existing, err := r.repo.SKUBySKU(ctx, sku)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s := &models.SKU{SKU: sku, ASIN: asin, Title: title, BrandID: brandID}
		if err := r.repo.SaveSKU(ctx, s); err != nil {
			return uuid.Nil, fmt.Errorf("create sku %q: %w", sku, err)
		}
		return s.ID, nil
	case err != nil:
		return uuid.Nil, fmt.Errorf("lookup sku %q: %w", sku, err)
	}

	if brandID == uuid.Nil || brandID == existing.BrandID {
		return existing.ID, nil
	}
	if r.isPlaceholder(ctx, brandID) && !r.isPlaceholder(ctx, existing.BrandID) {
		return existing.ID, nil
	}

	existing.BrandID = brandID
	if asin != "" {
		existing.ASIN = asin
	}
	if title != "" {
		existing.Title = title
	}
	if err := r.repo.SaveSKU(ctx, &existing); err != nil {
		return uuid.Nil, fmt.Errorf("update sku %q: %w", sku, err)
	}
	r.log.Debug("sku brand updated", slog.String("sku", sku), slog.String("brand", r.brandName(ctx, brandID)))
	return existing.ID, nil
}

// ResolveCampaignBrand picks the brand a campaign belongs to: its stored
// real brand, else the brand of an ASIN named in the campaign, else its
// stored placeholder, else models.BrandDefault. A real brand is never
// replaced by a placeholder.
func (r *Resolver) ResolveCampaignBrand(ctx context.Context, campaignID, name string) (uuid.UUID, error) {
	existing, err := r.repo.CampaignByExternalID(ctx, campaignID)
	found := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return uuid.Nil, fmt.Errorf("lookup campaign %s: %w", campaignID, err)
	}
	if found && !r.isPlaceholder(ctx, existing.BrandID) {
		return existing.BrandID, nil
	}
	if asin := ASINFromName(name); asin != "" {
		if s, err := r.repo.SKUByASIN(ctx, asin); err == nil && !r.isPlaceholder(ctx, s.BrandID) {
			return s.BrandID, nil
		}
	}
	if found && existing.BrandID != uuid.Nil {
		return existing.BrandID, nil
	}
	return r.ResolveBrand(ctx, models.BrandDefault)
}

// StoredBrand returns the real brand already recorded for sku, if any.
func (r *Resolver) StoredBrand(ctx context.Context, sku string) (string, bool) {
	s, err := r.repo.SKUBySKU(ctx, sku)
	if err != nil {
		return "", false
	}
	n := r.brandName(ctx, s.BrandID)
	if n == "" || models.IsPlaceholderBrand(n) {
		return "", false
	}
	return n, true
}

// SetSKUBrand records the brand attributed to sku for this run.
func (r *Resolver) SetSKUBrand(sku, brand string) { r.skuBrand[sku] = brand }

func (r *Resolver) SKUBrand(sku string) (string, bool) {
	b, ok := r.skuBrand[sku]
	return b, ok
}

// TruncateTitle caps titles at 150 characters, marking cut titles with "...".
func TruncateTitle(title string) string {
	rs := []rune(strings.TrimSpace(title))
	if len(rs) <= maxTitleLen {
		return string(rs)
	}
	return string(rs[:maxTitleLen-3]) + "..."
}

// ASINFromName extracts an ASIN such as B0ABCDEFGH from a campaign name.
func ASINFromName(name string) string {
	return campaignASINRe.FindString(name)
}
