package spapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/AngelCh415/amazon-brain/internal/models"
	"github.com/AngelCh415/amazon-brain/internal/reports"
)

const (
	ReportMerchantListings = "GET_MERCHANT_LISTINGS_ALL_DATA"
	ReportFBAInventory     = "GET_FBA_MYI_UNSUPPRESSED_INVENTORY_DATA"
)

type createReportResp struct {
	ReportID string `json:"reportId"`
}

type reportStatusResp struct {
	ProcessingStatus string `json:"processingStatus"`
	ReportDocumentID string `json:"reportDocumentId"`
}

type documentResp struct {
	URL                  string `json:"url"`
	CompressionAlgorithm string `json:"compressionAlgorithm"`
}

// DownloadReport requests a report, waits for it and returns the
// decompressed document.
func (c *Client) DownloadReport(ctx context.Context, reportType string) ([]byte, error) {
	r, err := c.req(ctx)
	if err != nil {
		return nil, err
	}
	body, _ := json.Marshal(map[string]any{
		"reportType":     reportType,
		"marketplaceIds": []string{c.opts.MarketplaceID},
	})
	resp, err := r.SetHeader("Content-Type", "application/json").SetBody(body).Post("/reports/2021-06-30/reports")
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", reportType, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("create %s: status %d", reportType, resp.StatusCode())
	}
	var created createReportResp
	if err := json.Unmarshal(resp.Body(), &created); err != nil || created.ReportID == "" {
		return nil, fmt.Errorf("create %s: no report id", reportType)
	}

	var docID string
	err = reports.Poll(ctx, c.opts.Poll, func(ctx context.Context, attempt int) (bool, error) {
		var st reportStatusResp
		if err := c.getJSON(ctx, "/reports/2021-06-30/reports/"+created.ReportID, nil, &st); err != nil {
			c.log.Debug("report status unavailable", slog.String("report_type", reportType), slog.Int("attempt", attempt), slog.Any("err", err))
			return false, nil
		}
		switch st.ProcessingStatus {
		case "DONE":
			docID = st.ReportDocumentID
			return docID != "", nil
		case "CANCELLED", "FATAL":
			return false, fmt.Errorf("report %s ended %s", created.ReportID, st.ProcessingStatus)
		}
		return false, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", reportType, err)
	}

	var doc documentResp
	if err := c.getJSON(ctx, "/reports/2021-06-30/documents/"+docID, nil, &doc); err != nil {
		return nil, fmt.Errorf("%s document: %w", reportType, err)
	}
	dl, err := c.http.R().SetContext(ctx).Get(doc.URL)
	if err != nil {
		return nil, fmt.Errorf("%s download: %w", reportType, err)
	}
	if dl.IsError() {
		return nil, fmt.Errorf("%s download: status %d", reportType, dl.StatusCode())
	}
	return reports.Decompress(dl.Body()), nil
}

// parseTSV reads a flat-file report into header-keyed rows.
func parseTSV(b []byte) []map[string]string {
	lines := strings.Split(strings.ReplaceAll(string(b), "\r\n", "\n"), "\n")
	var nonEmpty []string
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			nonEmpty = append(nonEmpty, l)
		}
	}
	if len(nonEmpty) < 2 {
		return nil
	}
	headers := strings.Split(nonEmpty[0], "\t")
	rows := make([]map[string]string, 0, len(nonEmpty)-1)
	for _, l := range nonEmpty[1:] {
		vals := strings.Split(l, "\t")
		row := make(map[string]string, len(headers))
		for i, h := range headers {
			v := ""
			if i < len(vals) {
				v = strings.TrimSpace(vals[i])
			}
			row[strings.TrimSpace(h)] = v
		}
		rows = append(rows, row)
	}
	return rows
}

func first(row map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := row[k]; v != "" {
			return v
		}
	}
	return ""
}

// ActiveListings returns the Active rows of the merchant listings report.
func (c *Client) ActiveListings(ctx context.Context) ([]models.Listing, error) {
	b, err := c.DownloadReport(ctx, ReportMerchantListings)
	if err != nil {
		return nil, err
	}
	var out []models.Listing
	for _, r := range parseTSV(b) {
		if r["status"] != "Active" {
			continue
		}
		qty, _ := strconv.Atoi(first(r, "quantity", "afn-fulfillable-quantity"))
		out = append(out, models.Listing{
			SKU:      first(r, "seller-sku", "sku"),
			ASIN:     first(r, "asin1", "asin"),
			Name:     first(r, "item-name", "product-name"),
			Price:    r["price"],
			Channel:  r["fulfillment-channel"],
			Status:   r["status"],
			Quantity: qty,
		})
	}
	return out, nil
}

// FBAInventory returns the unsuppressed FBA inventory report.
func (c *Client) FBAInventory(ctx context.Context) ([]models.InventoryItem, error) {
	b, err := c.DownloadReport(ctx, ReportFBAInventory)
	if err != nil {
		return nil, err
	}
	var out []models.InventoryItem
	for _, r := range parseTSV(b) {
		qty, _ := strconv.Atoi(r["afn-fulfillable-quantity"])
		out = append(out, models.InventoryItem{
			SKU:         first(r, "sku", "seller-sku"),
			ASIN:        r["asin"],
			Name:        r["product-name"],
			Fulfillable: qty,
		})
	}
	return out, nil
}
