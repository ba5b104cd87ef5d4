package lwa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultTokenURL = "https://api.amazon.com/auth/o2/token"

type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

func (c Credentials) Valid() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
}

// Provider exchanges a refresh token for access tokens and caches them
// until shortly before they expire.
type Provider struct {
	http     *resty.Client
	tokenURL string
	creds    Credentials

	mu      sync.Mutex
	token   string
	expires time.Time
	now     func() time.Time
}

func NewProvider(tokenURL string, creds Credentials, timeout time.Duration) *Provider {
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	hc := resty.New()
	hc.SetTimeout(timeout)
	return &Provider{http: hc, tokenURL: tokenURL, creds: creds, now: time.Now}
}

func (p *Provider) ClientID() string { return p.creds.ClientID }

type tokenResp struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int    `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (p *Provider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token != "" && p.now().Before(p.expires) {
		return p.token, nil
	}
	if !p.creds.Valid() {
		return "", errors.New("lwa: missing client id, secret or refresh token")
	}

	resp, err := p.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": p.creds.RefreshToken,
			"client_id":     p.creds.ClientID,
			"client_secret": p.creds.ClientSecret,
		}).
		Post(p.tokenURL)
	if err != nil {
		return "", fmt.Errorf("lwa token: %w", err)
	}
	var out tokenResp
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("lwa token: decode: %w", err)
	}
	if resp.IsError() || out.AccessToken == "" {
		return "", fmt.Errorf("lwa token: status %d %s %s", resp.StatusCode(), out.Error, out.ErrorDescription)
	}
	ttl := time.Duration(out.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	p.token = out.AccessToken
	p.expires = p.now().Add(ttl - time.Minute)
	return p.token, nil
}
