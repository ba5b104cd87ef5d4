package ads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/AngelCh415/amazon-brain/internal/models"
)

const DefaultBaseURL = "https://advertising-api-eu.amazon.com"

var ErrNoProfile = errors.New("ads: no advertising profile available")

type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client talks to the Advertising API for one profile.
type Client struct {
	http     *resty.Client
	tokens   TokenSource
	clientID string
	log      *slog.Logger

	mu        sync.Mutex
	profileID string
}

func NewClient(baseURL, clientID, profileID string, tokens TokenSource, timeout time.Duration, log *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	hc := resty.New()
	hc.SetBaseURL(baseURL)
	hc.SetTimeout(timeout)
	return &Client{http: hc, tokens: tokens, clientID: clientID, profileID: profileID, log: log}
}

func (c *Client) baseHeaders(ctx context.Context) (map[string]string, error) {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"Authorization":                   "Bearer " + tok,
		"Amazon-Advertising-API-ClientId": c.clientID,
	}, nil
}

// Headers returns the auth and scope headers for profile-scoped calls.
func (c *Client) Headers(ctx context.Context) (map[string]string, error) {
	profile, err := c.ProfileID(ctx)
	if err != nil {
		return nil, err
	}
	h, err := c.baseHeaders(ctx)
	if err != nil {
		return nil, err
	}
	h["Amazon-Advertising-API-Scope"] = profile
	return h, nil
}

type profile struct {
	ProfileID   models.FlexID `json:"profileId"`
	CountryCode string        `json:"countryCode"`
}

// ProfileID returns the configured profile, or the first one the account
// exposes.
func (c *Client) ProfileID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.profileID != "" {
		return c.profileID, nil
	}
	h, err := c.baseHeaders(ctx)
	if err != nil {
		return "", err
	}
	resp, err := c.http.R().SetContext(ctx).SetHeaders(h).Get("/v2/profiles")
	if err != nil {
		return "", fmt.Errorf("list profiles: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("list profiles: status %d", resp.StatusCode())
	}
	var profiles []profile
	if err := json.Unmarshal(resp.Body(), &profiles); err != nil {
		return "", fmt.Errorf("decode profiles: %w", err)
	}
	if len(profiles) == 0 || profiles[0].ProfileID == "" {
		return "", ErrNoProfile
	}
	c.profileID = profiles[0].ProfileID.String()
	c.log.Info("using advertising profile", slog.String("profile_id", c.profileID), slog.String("country", profiles[0].CountryCode))
	return c.profileID, nil
}

type campaignPage struct {
	Campaigns []struct {
		CampaignID    models.FlexID   `json:"campaignId"`
		Name          string          `json:"name"`
		State         string          `json:"state"`
		Budget        json.RawMessage `json:"budget"`
		TargetingType string          `json:"targetingType"`
		Tactic        string          `json:"tactic"`
	} `json:"campaigns"`
	NextToken string `json:"nextToken"`
}

const maxCampaignPages = 50

// ListCampaigns lists SP or SD campaigns, following nextToken.
func (c *Client) ListCampaigns(ctx context.Context, adType string) ([]models.CampaignInfo, error) {
	var path, ct string
	switch adType {
	case "SP":
		path, ct = "/sp/campaigns/list", "application/vnd.spCampaign.v3+json"
	case "SD":
		path, ct = "/sd/campaigns/list", "application/vnd.sdcampaign.v3+json"
	default:
		return nil, fmt.Errorf("unknown ad type %q", adType)
	}
	h, err := c.Headers(ctx)
	if err != nil {
		return nil, err
	}

	var out []models.CampaignInfo
	next := ""
	for page := 0; page < maxCampaignPages; page++ {
		body := map[string]any{"maxResults": 100}
		if next != "" {
			body["nextToken"] = next
		}
		b, _ := json.Marshal(body)
		resp, err := c.http.R().
			SetContext(ctx).
			SetHeaders(h).
			SetHeader("Content-Type", ct).
			SetHeader("Accept", ct).
			SetBody(b).
			Post(path)
		if err != nil {
			return out, fmt.Errorf("list %s campaigns: %w", adType, err)
		}
		if resp.IsError() {
			return out, fmt.Errorf("list %s campaigns: status %d", adType, resp.StatusCode())
		}
		var p campaignPage
		if err := json.Unmarshal(resp.Body(), &p); err != nil {
			return out, fmt.Errorf("decode %s campaigns: %w", adType, err)
		}
		for _, cp := range p.Campaigns {
			targeting := cp.TargetingType
			if targeting == "" {
				targeting = cp.Tactic
			}
			out = append(out, models.CampaignInfo{
				CampaignID:    cp.CampaignID.String(),
				Name:          cp.Name,
				Type:          adType,
				State:         strings.ToLower(cp.State),
				Budget:        parseBudget(cp.Budget),
				TargetingType: targeting,
			})
		}
		if p.NextToken == "" {
			break
		}
		next = p.NextToken
	}
	return out, nil
}

// parseBudget accepts {"budget": 10} (SP) or a bare number (SD).
func parseBudget(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var obj struct {
		Budget float64 `json:"budget"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Budget
	}
	return 0
}
