package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultResendURL = "https://api.resend.com/emails"

var ErrNotConfigured = errors.New("notify: resend api key not set")

type Message struct {
	Subject string
	Text    string
}

// Sender delivers plain text emails through the Resend HTTP API.
type Sender struct {
	http   *resty.Client
	url    string
	apiKey string
	from   string
	to     []string
}

func NewSender(url, apiKey, from string, to []string, timeout time.Duration) *Sender {
	if url == "" {
		url = DefaultResendURL
	}
	hc := resty.New()
	hc.SetTimeout(timeout)
	return &Sender{http: hc, url: url, apiKey: apiKey, from: from, to: to}
}

// Enabled is false without an api key; the cron skips the email then.
func (s *Sender) Enabled() bool { return s != nil && s.apiKey != "" }

type email struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
}

func (s *Sender) Send(ctx context.Context, m Message) error {
	if !s.Enabled() {
		return ErrNotConfigured
	}
	to := s.to
	if to == nil {
		to = []string{}
	}
	resp, err := s.http.R().
		SetContext(ctx).
		SetAuthToken(s.apiKey).
		SetBody(email{From: s.from, To: to, Subject: m.Subject, Text: m.Text}).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("resend: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
