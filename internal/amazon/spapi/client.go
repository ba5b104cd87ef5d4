package spapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/AngelCh415/amazon-brain/internal/models"
	"github.com/AngelCh415/amazon-brain/internal/reports"
)

const DefaultBaseURL = "https://sellingpartnerapi-eu.amazon.com"

var orderStatuses = []string{"Shipped", "Unshipped", "PartiallyShipped"}

type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type Options struct {
	BaseURL       string
	SellerID      string
	MarketplaceID string
	Timeout       time.Duration
	// LookupsPerSecond caps listing lookups; they run one at a time.
	LookupsPerSecond float64
	Poll             reports.PollConfig
}

type Client struct {
	http    *resty.Client
	tokens  TokenSource
	opts    Options
	limiter *rate.Limiter
	log     *slog.Logger
}

func NewClient(opts Options, tokens TokenSource, log *slog.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.LookupsPerSecond <= 0 {
		opts.LookupsPerSecond = 5
	}
	if opts.Poll.Interval <= 0 {
		opts.Poll = reports.PollConfig{Interval: 8 * time.Second, MaxAttempts: 15}
	}
	hc := resty.New()
	hc.SetBaseURL(opts.BaseURL)
	hc.SetTimeout(opts.Timeout)
	return &Client{
		http:    hc,
		tokens:  tokens,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.LookupsPerSecond), 1),
		log:     log,
	}
}

func (c *Client) req(ctx context.Context) (*resty.Request, error) {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	return c.http.R().SetContext(ctx).SetHeader("x-amz-access-token", tok).SetHeader("Accept", "application/json"), nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, v any) error {
	r, err := c.req(ctx)
	if err != nil {
		return err
	}
	resp, err := r.SetQueryParamsFromValues(query).Get(path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("non-2xx: %d body=%s", resp.StatusCode(), string(limit(resp.Body())))
	}
	return json.Unmarshal(resp.Body(), v)
}

type ordersResp struct {
	Payload struct {
		Orders []struct {
			AmazonOrderID string `json:"AmazonOrderId"`
			PurchaseDate  string `json:"PurchaseDate"`
		} `json:"Orders"`
		NextToken string `json:"NextToken"`
	} `json:"payload"`
}

type orderItemsResp struct {
	Payload struct {
		OrderItems []struct {
			ASIN            string `json:"ASIN"`
			SellerSKU       string `json:"SellerSKU"`
			Title           string `json:"Title"`
			QuantityOrdered int    `json:"QuantityOrdered"`
			ItemPrice       *struct {
				Amount string `json:"Amount"`
			} `json:"ItemPrice"`
		} `json:"OrderItems"`
		NextToken string `json:"NextToken"`
	} `json:"payload"`
}

// Orders returns one line per order item for orders created after since.
// Orders whose items cannot be fetched contribute no lines. Any failed page
// fails the whole listing; callers never see a partial set of orders.
func (c *Client) Orders(ctx context.Context, since time.Time) ([]models.OrderLine, error) {
	var lines []models.OrderLine
	next := ""
	pages := 0
	for {
		q := url.Values{}
		q.Set("MarketplaceIds", c.opts.MarketplaceID)
		if next != "" {
			q.Set("NextToken", next)
		} else {
			q.Set("CreatedAfter", since.UTC().Format(time.RFC3339))
			q.Set("OrderStatuses", strings.Join(orderStatuses, ","))
		}
		var out ordersResp
		if err := c.getJSON(ctx, "/orders/v0/orders", q, &out); err != nil {
			return nil, fmt.Errorf("get orders page %d: %w", pages+1, err)
		}
		pages++
		for _, o := range out.Payload.Orders {
			purchased, err := time.Parse(time.RFC3339, o.PurchaseDate)
			if err != nil {
				purchased = time.Now()
			}
			items, err := c.orderItems(ctx, o.AmazonOrderID)
			if err != nil {
				c.log.Warn("order items unavailable", slog.String("order_id", o.AmazonOrderID), slog.Any("err", err))
				continue
			}
			for _, it := range items {
				it.OrderID = o.AmazonOrderID
				it.PurchaseDate = purchased
				lines = append(lines, it)
			}
		}
		next = out.Payload.NextToken
		if next == "" {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("get orders page %d: %w", pages+1, err)
		}
	}
	c.log.Info("orders fetched", slog.Int("pages", pages), slog.Int("lines", len(lines)))
	return lines, nil
}

func (c *Client) orderItems(ctx context.Context, orderID string) ([]models.OrderLine, error) {
	var out []models.OrderLine
	next := ""
	for {
		q := url.Values{}
		if next != "" {
			q.Set("NextToken", next)
		}
		var resp orderItemsResp
		if err := c.getJSON(ctx, "/orders/v0/orders/"+url.PathEscape(orderID)+"/orderItems", q, &resp); err != nil {
			return nil, err
		}
		for _, it := range resp.Payload.OrderItems {
			price := 0.0
			if it.ItemPrice != nil {
				price, _ = strconv.ParseFloat(it.ItemPrice.Amount, 64)
			}
			out = append(out, models.OrderLine{
				SKU:       it.SellerSKU,
				ASIN:      it.ASIN,
				Title:     it.Title,
				Quantity:  it.QuantityOrdered,
				ItemPrice: price,
			})
		}
		next = resp.Payload.NextToken
		if next == "" {
			return out, nil
		}
	}
}

type listingResp struct {
	Attributes struct {
		Brand []struct {
			Value string `json:"value"`
		} `json:"brand"`
	} `json:"attributes"`
}

// ListingBrand looks up the brand attribute of a listing. Lookups are
// rate limited; any failure yields models.BrandUnknown.
func (c *Client) ListingBrand(ctx context.Context, sku string) string {
	if err := c.limiter.Wait(ctx); err != nil {
		return models.BrandUnknown
	}
	q := url.Values{}
	q.Set("marketplaceIds", c.opts.MarketplaceID)
	q.Set("includedData", "attributes")
	var out listingResp
	path := "/listings/2021-08-01/items/" + url.PathEscape(c.opts.SellerID) + "/" + url.PathEscape(sku)
	if err := c.getJSON(ctx, path, q, &out); err != nil {
		c.log.Debug("listing brand lookup failed", slog.String("sku", sku), slog.Any("err", err))
		return models.BrandUnknown
	}
	if len(out.Attributes.Brand) == 0 || strings.TrimSpace(out.Attributes.Brand[0].Value) == "" {
		return models.BrandUnknown
	}
	return strings.TrimSpace(out.Attributes.Brand[0].Value)
}

func limit(b []byte) []byte {
	if len(b) > 1024 {
		return b[:1024]
	}
	return b
}
