package ads

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fixedToken string

func (f fixedToken) Token(context.Context) (string, error) { return string(f), nil }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestProfileFallsBackToFirstProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/profiles" || r.Header.Get("Authorization") != "Bearer tok" || r.Header.Get("Amazon-Advertising-API-ClientId") != "cid" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Write([]byte(`[{"profileId": 3141592653589, "countryCode": "AE"}, {"profileId": 2}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "cid", "", fixedToken("tok"), time.Second, discard())
	h, err := c.Headers(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if h["Amazon-Advertising-API-Scope"] != "3141592653589" {
		t.Fatalf("scope = %q", h["Amazon-Advertising-API-Scope"])
	}
}

func TestConfiguredProfileWins(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "cid", "p-env", fixedToken("tok"), time.Second, discard())
	id, err := c.ProfileID(context.Background())
	if err != nil || id != "p-env" {
		t.Fatalf("profile = %q, %v", id, err)
	}
}

func TestListCampaignsFollowsNextToken(t *testing.T) {
	page := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/vnd.spCampaign.v3+json" || r.Header.Get("Amazon-Advertising-API-Scope") != "p1" {
			http.Error(w, "bad headers", http.StatusBadRequest)
			return
		}
		page++
		if page == 1 {
			w.Write([]byte(`{"campaigns":[{"campaignId":"111","name":"Acme B0ABCDEFGH exact","state":"ENABLED","budget":{"budget":25,"budgetType":"DAILY"},"targetingType":"MANUAL"}],"nextToken":"n2"}`))
			return
		}
		w.Write([]byte(`{"campaigns":[{"campaignId":222,"name":"Auto","state":"PAUSED","budget":{"budget":10}}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "cid", "p1", fixedToken("tok"), time.Second, discard())
	got, err := c.ListCampaigns(context.Background(), "SP")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("campaigns = %+v", got)
	}
	if got[0].CampaignID != "111" || got[0].Budget != 25 || got[0].State != "enabled" || got[0].Type != "SP" {
		t.Fatalf("first = %+v", got[0])
	}
	if got[1].CampaignID != "222" || got[1].TargetingType != "" {
		t.Fatalf("second = %+v", got[1])
	}
}

func TestParseBudget(t *testing.T) {
	if parseBudget([]byte(`12.5`)) != 12.5 || parseBudget([]byte(`{"budget":7}`)) != 7 || parseBudget(nil) != 0 {
		t.Fatal("budget parsing")
	}
}
