package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/AngelCh415/amazon-brain/internal/metrics"
)

const createContentType = "application/vnd.createasyncreportrequest.v3+json"

type AdProduct string

const (
	SponsoredProducts AdProduct = "SPONSORED_PRODUCTS"
	SponsoredDisplay  AdProduct = "SPONSORED_DISPLAY"
)

// Request describes one asynchronous Ads report over a date range.
type Request struct {
	Name         string
	AdProduct    AdProduct
	GroupBy      []string
	Columns      []string
	ReportTypeID string
	TimeUnit     string
	Format       string
	Range        DateRange
	// Poll overrides the client's poll budget when set.
	Poll PollConfig
}

// HeaderSource supplies the auth headers of every report call.
type HeaderSource interface {
	Headers(ctx context.Context) (map[string]string, error)
}

type Client struct {
	http *resty.Client
	auth HeaderSource
	poll PollConfig
	log  *slog.Logger
}

func NewClient(baseURL string, timeout time.Duration, auth HeaderSource, poll PollConfig, log *slog.Logger) *Client {
	hc := resty.New()
	hc.SetBaseURL(baseURL)
	hc.SetTimeout(timeout)
	return &Client{http: hc, auth: auth, poll: poll.orDefault(DefaultPoll), log: log}
}

type createBody struct {
	Name          string        `json:"name"`
	StartDate     string        `json:"startDate"`
	EndDate       string        `json:"endDate"`
	Configuration configuration `json:"configuration"`
}

type configuration struct {
	AdProduct    AdProduct `json:"adProduct"`
	GroupBy      []string  `json:"groupBy"`
	Columns      []string  `json:"columns"`
	ReportTypeID string    `json:"reportTypeId"`
	TimeUnit     string    `json:"timeUnit"`
	Format       string    `json:"format"`
}

type statusResp struct {
	ReportID      string `json:"reportId"`
	Status        string `json:"status"`
	URL           string `json:"url"`
	FailureReason string `json:"failureReason"`
}

// Run requests, polls and downloads a report and returns its decompressed
// payload. Any failure is logged and yields nil.
func (c *Client) Run(ctx context.Context, req Request) []byte {
	start := time.Now()
	log := c.log.With(slog.String("report", req.ReportTypeID), slog.String("from", req.Range.StartDate()), slog.String("to", req.Range.EndDate()))

	body, outcome, err := c.run(ctx, req, log)
	metrics.ReportRequests.WithLabelValues(req.ReportTypeID, outcome).Inc()
	metrics.ReportLatency.WithLabelValues(req.ReportTypeID).Observe(time.Since(start).Seconds())
	if err != nil {
		log.Warn("report unavailable", slog.String("outcome", outcome), slog.Any("err", err))
		return nil
	}
	log.Debug("report downloaded", slog.Int("bytes", len(body)))
	return body
}

func (c *Client) run(ctx context.Context, req Request, log *slog.Logger) ([]byte, string, error) {
	headers, err := c.auth.Headers(ctx)
	if err != nil {
		return nil, "auth_error", err
	}
	id, err := c.create(ctx, req, headers)
	if err != nil {
		return nil, "create_error", err
	}
	url, err := c.await(ctx, id, req.Poll.orDefault(c.poll), headers, log)
	switch {
	case errors.Is(err, ErrPollTimeout):
		return nil, "timeout", err
	case err != nil:
		return nil, "failed", err
	}
	body, err := c.download(ctx, url)
	if err != nil {
		return nil, "download_error", err
	}
	return body, "completed", nil
}

func (c *Client) create(ctx context.Context, req Request, headers map[string]string) (string, error) {
	timeUnit, format := req.TimeUnit, req.Format
	if timeUnit == "" {
		timeUnit = "DAILY"
	}
	if format == "" {
		format = "GZIP_JSON"
	}
	b, err := json.Marshal(createBody{
		Name:      req.Name,
		StartDate: req.Range.StartDate(),
		EndDate:   req.Range.EndDate(),
		Configuration: configuration{
			AdProduct:    req.AdProduct,
			GroupBy:      req.GroupBy,
			Columns:      req.Columns,
			ReportTypeID: req.ReportTypeID,
			TimeUnit:     timeUnit,
			Format:       format,
		},
	})
	if err != nil {
		return "", err
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetHeader("Content-Type", createContentType).
		SetBody(b).
		Post("/reporting/reports")
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("create report: status %d body=%s", resp.StatusCode(), truncate(resp.Body()))
	}
	var out statusResp
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("decode create response: %w", err)
	}
	if out.ReportID == "" {
		return "", fmt.Errorf("no report id returned: %s", truncate(resp.Body()))
	}
	return out.ReportID, nil
}

// await polls until the report is COMPLETED and returns its download url.
// A status call that fails still consumes an attempt.
func (c *Client) await(ctx context.Context, id string, pc PollConfig, headers map[string]string, log *slog.Logger) (string, error) {
	var url string
	err := Poll(ctx, pc, func(ctx context.Context, attempt int) (bool, error) {
		resp, err := c.http.R().SetContext(ctx).SetHeaders(headers).Get("/reporting/reports/" + id)
		if err != nil || resp.IsError() {
			log.Debug("report status unavailable", slog.String("report_id", id), slog.Int("attempt", attempt), slog.Any("err", err))
			return false, nil
		}
		var st statusResp
		if err := json.Unmarshal(resp.Body(), &st); err != nil {
			return false, fmt.Errorf("decode report status: %w", err)
		}
		switch st.Status {
		case "COMPLETED":
			if st.URL != "" {
				url = st.URL
				return true, nil
			}
		case "FAILURE", "FAILED", "CANCELLED":
			return false, fmt.Errorf("report %s failed: %s", id, st.FailureReason)
		}
		if attempt%3 == 1 {
			log.Info("report pending", slog.String("report_id", id), slog.String("status", st.Status), slog.Int("attempt", attempt), slog.Int("max", pc.MaxAttempts))
		}
		return false, nil
	})
	return url, err
}

// download fetches the pre-signed url without auth headers.
func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("download report: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("download report: status %d", resp.StatusCode())
	}
	return Decompress(resp.Body()), nil
}

// Fetch runs req and decodes the payload as a JSON array of T.
func Fetch[T any](ctx context.Context, c *Client, req Request) []T {
	raw := c.Run(ctx, req)
	if len(raw) == 0 {
		return nil
	}
	var rows []T
	if err := json.Unmarshal(raw, &rows); err != nil {
		c.log.Warn("report payload is not a json array", slog.String("report", req.ReportTypeID), slog.Any("err", err))
		return nil
	}
	return rows
}

func truncate(b []byte) string {
	if len(b) > 512 {
		b = b[:512]
	}
	return string(b)
}
