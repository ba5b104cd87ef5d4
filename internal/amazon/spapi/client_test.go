package spapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AngelCh415/amazon-brain/internal/models"
	"github.com/AngelCh415/amazon-brain/internal/reports"
)

type fixedToken string

func (f fixedToken) Token(context.Context) (string, error) { return string(f), nil }

func newTestClient(url string) *Client {
	return NewClient(Options{
		BaseURL:          url,
		SellerID:         "S1",
		MarketplaceID:    "M1",
		Timeout:          2 * time.Second,
		LookupsPerSecond: 1000,
		Poll:             reports.PollConfig{Interval: time.Millisecond, MaxAttempts: 5},
	}, fixedToken("tok"), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestOrdersPaginatesAndFetchesItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-amz-access-token") != "tok" {
			http.Error(w, "unauthorized", http.StatusForbidden)
			return
		}
		switch r.URL.Path {
		case "/orders/v0/orders":
			if r.URL.Query().Get("NextToken") == "" {
				if r.URL.Query().Get("OrderStatuses") != "Shipped,Unshipped,PartiallyShipped" {
					http.Error(w, "statuses", http.StatusBadRequest)
					return
				}
				w.Write([]byte(`{"payload":{"Orders":[{"AmazonOrderId":"A","PurchaseDate":"2024-02-07T10:00:00Z"}],"NextToken":"p2"}}`))
				return
			}
			w.Write([]byte(`{"payload":{"Orders":[{"AmazonOrderId":"B","PurchaseDate":"2024-02-08T10:00:00Z"},{"AmazonOrderId":"BROKEN","PurchaseDate":"2024-02-08T10:00:00Z"}]}}`))
		case "/orders/v0/orders/A/orderItems":
			w.Write([]byte(`{"payload":{"OrderItems":[{"ASIN":"B0AAAAAAAA","SellerSKU":"SKU-1","Title":"Thing","QuantityOrdered":1,"ItemPrice":{"Amount":"100.00"}}]}}`))
		case "/orders/v0/orders/B/orderItems":
			w.Write([]byte(`{"payload":{"OrderItems":[{"ASIN":"B0AAAAAAAA","SellerSKU":"SKU-1","QuantityOrdered":1,"ItemPrice":{"Amount":"50.00"}},{"SellerSKU":"SKU-2","QuantityOrdered":2}]}}`))
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	lines, err := newTestClient(srv.URL).Orders(context.Background(), time.Now().AddDate(0, 0, -90))
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 3 {
		t.Fatalf("lines = %+v", lines)
	}
	if lines[0].OrderID != "A" || lines[0].ItemPrice != 100 || lines[0].PurchaseDate.Day() != 7 {
		t.Fatalf("first line = %+v", lines[0])
	}
	if lines[2].SKU != "SKU-2" || lines[2].ItemPrice != 0 || lines[2].Quantity != 2 {
		t.Fatalf("third line = %+v", lines[2])
	}
}

func TestOrdersFailsWhenLaterPageFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/orders/v0/orders":
			if r.URL.Query().Get("NextToken") == "" {
				w.Write([]byte(`{"payload":{"Orders":[{"AmazonOrderId":"A","PurchaseDate":"2024-02-07T10:00:00Z"}],"NextToken":"p2"}}`))
				return
			}
			http.Error(w, `{"errors":[{"code":"QuotaExceeded"}]}`, http.StatusTooManyRequests)
		case "/orders/v0/orders/A/orderItems":
			w.Write([]byte(`{"payload":{"OrderItems":[{"SellerSKU":"SKU-1","QuantityOrdered":1,"ItemPrice":{"Amount":"100.00"}}]}}`))
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	lines, err := newTestClient(srv.URL).Orders(context.Background(), time.Now().AddDate(0, 0, -90))
	if err == nil {
		t.Fatalf("expected error, got %d lines", len(lines))
	}
	if lines != nil {
		t.Fatalf("partial lines returned: %+v", lines)
	}
	if !strings.Contains(err.Error(), "page 2") {
		t.Fatalf("err = %v", err)
	}
}

func TestListingBrand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("includedData") != "attributes" {
			http.Error(w, "bad", http.StatusBadRequest)
			return
		}
		switch r.URL.Path {
		case "/listings/2021-08-01/items/S1/SKU-1":
			w.Write([]byte(`{"attributes":{"brand":[{"value":"Acme","marketplace_id":"M1"}]}}`))
		case "/listings/2021-08-01/items/S1/SKU-2":
			w.Write([]byte(`{"attributes":{}}`))
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	if got := c.ListingBrand(context.Background(), "SKU-1"); got != "Acme" {
		t.Fatalf("brand = %q", got)
	}
	if got := c.ListingBrand(context.Background(), "SKU-2"); got != models.BrandUnknown {
		t.Fatalf("brand without attribute = %q", got)
	}
	if got := c.ListingBrand(context.Background(), "SKU-3"); got != models.BrandUnknown {
		t.Fatalf("brand on error = %q", got)
	}
}

func TestActiveListingsParsesReport(t *testing.T) {
	tsv := strings.Join([]string{
		"item-name\tseller-sku\tprice\tquantity\tasin1\tstatus\tfulfillment-channel",
		"Blue Mug\tMUG-1\t20.00\t30\tB0MUG00001\tActive\tDEFAULT",
		"Old Mug\tMUG-2\t10.00\t0\tB0MUG00002\tInactive\tDEFAULT",
		"",
	}, "\n")
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/reports/2021-06-30/reports":
			w.Write([]byte(`{"reportId":"R1"}`))
		case r.URL.Path == "/reports/2021-06-30/reports/R1":
			w.Write([]byte(`{"processingStatus":"DONE","reportDocumentId":"D1"}`))
		case r.URL.Path == "/reports/2021-06-30/documents/D1":
			w.Write([]byte(`{"url":"` + srv.URL + `/doc"}`))
		case r.URL.Path == "/doc":
			w.Write([]byte(tsv))
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL).ActiveListings(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].SKU != "MUG-1" || got[0].ASIN != "B0MUG00001" || got[0].Quantity != 30 || got[0].Name != "Blue Mug" {
		t.Fatalf("listings = %+v", got)
	}
}
