package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string `validate:"required_if=StoreDriver postgres"`
	StoreDriver string `validate:"oneof=postgres memory"`
	AutoMigrate bool

	// Login with Amazon: selling partner app and advertising app.
	LWAClientID     string
	LWAClientSecret string
	RefreshToken    string
	AdsClientID     string
	AdsClientSecret string
	AdsRefreshToken string
	AdsProfileID    string
	LWATokenURL     string `validate:"omitempty,url"`
	AdsAPIURL       string `validate:"omitempty,url"`
	SPAPIURL        string `validate:"omitempty,url"`
	SellerID        string
	MarketplaceID   string

	SyncDaysBack       int     `validate:"gte=1,lte=730"`
	AdsMaxDays         int     `validate:"gte=1,lte=95"`
	VatRate            float64 `validate:"gte=0,lt=100"`
	Timezone           string
	ReportPoll         time.Duration `validate:"gt=0"`
	ReportMaxAttempts  int           `validate:"gte=1"`
	SearchTermAttempts int           `validate:"gte=1"`
	ChunkCampaign      int           `validate:"gte=1"`
	ChunkSkuAds        int           `validate:"gte=1"`
	ChunkSearchTerm    int           `validate:"gte=1"`
	ChunkTargeting     int           `validate:"gte=1"`
	LookupsPerSecond   float64       `validate:"gt=0"`

	SheetsAPIKey string
	SyncAPIKey   string
	CronSecret   string

	ResendAPIKey string
	ResendAPIURL string `validate:"omitempty,url"`
	EmailFrom    string
	EmailTo      []string `validate:"dive,email"`

	Port        string `validate:"numeric"`
	HTTPTimeout time.Duration
	LogLevel    slog.Level
}

// FromEnv reads the process environment, after loading .env.local and .env
// when present. Variables already set win over the files.
func FromEnv() Config {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	return Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StoreDriver: envOr("STORE_DRIVER", "postgres"),
		AutoMigrate: envBool("AUTO_MIGRATE", true),

		LWAClientID:     os.Getenv("LWA_CLIENT_ID"),
		LWAClientSecret: os.Getenv("LWA_CLIENT_SECRET"),
		RefreshToken:    os.Getenv("REFRESH_TOKEN"),
		AdsClientID:     envOr("ADS_CLIENT_ID", os.Getenv("LWA_CLIENT_ID")),
		AdsClientSecret: envOr("ADS_CLIENT_SECRET", os.Getenv("LWA_CLIENT_SECRET")),
		AdsRefreshToken: envOr("ADS_REFRESH_TOKEN", os.Getenv("REFRESH_TOKEN")),
		AdsProfileID:    os.Getenv("ADS_PROFILE_ID"),
		LWATokenURL:     os.Getenv("LWA_TOKEN_URL"),
		AdsAPIURL:       os.Getenv("ADS_API_URL"),
		SPAPIURL:        os.Getenv("SP_API_URL"),
		SellerID:        os.Getenv("SELLER_ID"),
		MarketplaceID:   os.Getenv("MARKETPLACE_ID"),

		SyncDaysBack:       envInt("SYNC_DAYS_BACK", 90),
		AdsMaxDays:         envInt("ADS_MAX_DAYS", 60),
		VatRate:            envFloat("VAT_RATE", 5),
		Timezone:           envOr("TIMEZONE", "UTC"),
		ReportPoll:         envSeconds("REPORT_POLL_SECONDS", 6*time.Second),
		ReportMaxAttempts:  envInt("REPORT_MAX_ATTEMPTS", 90),
		SearchTermAttempts: envInt("SEARCHTERM_MAX_ATTEMPTS", 150),
		ChunkCampaign:      envInt("CHUNK_DAYS_CAMPAIGN", 7),
		ChunkSkuAds:        envInt("CHUNK_DAYS_SKU_ADS", 7),
		ChunkSearchTerm:    envInt("CHUNK_DAYS_SEARCHTERM", 7),
		ChunkTargeting:     envInt("CHUNK_DAYS_TARGETING", 14),
		LookupsPerSecond:   envFloat("LISTING_LOOKUPS_PER_SECOND", 5),

		SheetsAPIKey: os.Getenv("SHEETS_API_KEY"),
		SyncAPIKey:   os.Getenv("SYNC_API_KEY"),
		CronSecret:   os.Getenv("CRON_SECRET"),

		ResendAPIKey: os.Getenv("RESEND_API_KEY"),
		ResendAPIURL: os.Getenv("RESEND_API_URL"),
		EmailFrom:    envOr("EMAIL_FROM", "Amazon Brain <noreply@yourdomain.com>"),
		EmailTo:      splitList(os.Getenv("EMAIL_TO")),

		Port:        envOr("PORT", "8080"),
		HTTPTimeout: envSeconds("HTTP_TIMEOUT_SECONDS", 30*time.Second),
		LogLevel:    parseLevel(os.Getenv("LOG_LEVEL")),
	}
}

var validate = validator.New()

// ValidateServer checks the settings every binary needs.
func (c Config) ValidateServer() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

var ErrMissingCredentials = errors.New("config: missing Amazon credentials")

// ValidateSync additionally requires the credentials of both APIs.
func (c Config) ValidateSync() error {
	if err := c.ValidateServer(); err != nil {
		return err
	}
	var missing []string
	for k, v := range map[string]string{
		"LWA_CLIENT_ID":     c.LWAClientID,
		"LWA_CLIENT_SECRET": c.LWAClientSecret,
		"REFRESH_TOKEN":     c.RefreshToken,
		"SELLER_ID":         c.SellerID,
		"MARKETPLACE_ID":    c.MarketplaceID,
	} {
		if v == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return nil
}

// SellerConfigured reports whether the selling partner API can be used.
func (c Config) SellerConfigured() bool {
	return c.LWAClientID != "" && c.LWAClientSecret != "" && c.RefreshToken != "" && c.MarketplaceID != ""
}

func (c Config) AdsConfigured() bool {
	return c.AdsClientID != "" && c.AdsClientSecret != "" && c.AdsRefreshToken != ""
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envInt(k string, def int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(k))); err == nil {
		return n
	}
	return def
}

func envFloat(k string, def float64) float64 {
	if f, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(k)), 64); err == nil {
		return f
	}
	return def
}

func envBool(k string, def bool) bool {
	if b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(k))); err == nil {
		return b
	}
	return def
}

func envSeconds(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil {
			return d
		}
	}
	return def
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
