package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"shopmon/classifier"
	"shopmon/config"
)

// RemoteChecker delegates the check to an external check-stock service
// that renders the page in a real browser and reports a verdict.
type RemoteChecker struct {
	client *resty.Client
}

func NewRemoteChecker(cfg config.DelegateConfig, httpClient *http.Client) *RemoteChecker {
	client := resty.NewWithClient(httpClient).
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("X-API-Key", cfg.APIKey)
	}
	return &RemoteChecker{client: client}
}

// stockEnvelope is the delegate's response shape. Price arrives as a
// string on some deployments and a bare number on others.
type stockEnvelope struct {
	Success     bool            `json:"success"`
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Price       json.RawMessage `json:"price"`
	InStock     *bool           `json:"inStock"`
	StockStatus string          `json:"stockStatus"`
	StockReason string          `json:"stockReason"`
	URL         string          `json:"url"`
	Timestamp   string          `json:"timestamp"`
	Debug       json.RawMessage `json:"debug,omitempty"`
	Error       string          `json:"error,omitempty"`
}

func (c *RemoteChecker) Check(ctx context.Context, target Target) (*Outcome, error) {
	start := time.Now()

	var env stockEnvelope
	req := c.client.R().
		SetContext(ctx).
		SetResult(&env).
		SetQueryParam("url", target.URL)
	if target.ProductID != uuid.Nil {
		req.SetQueryParam("productId", target.ProductID.String())
	}

	resp, err := req.Get("/api/check-stock")
	if err != nil {
		return nil, fmt.Errorf("delegate unreachable: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("delegate returned %d", resp.StatusCode())
	}
	if !env.Success {
		reason := env.Error
		if reason == "" {
			reason = "no verdict in response"
		}
		return nil, fmt.Errorf("delegate check failed: %s", reason)
	}

	return &Outcome{
		Verdict:     env.verdict(),
		Elapsed:     time.Since(start),
		Via:         "remote",
		ProductName: env.ProductName,
	}, nil
}

func (e *stockEnvelope) verdict() classifier.Verdict {
	v := classifier.Verdict{Rule: "remote", Marker: e.StockReason, Price: e.price()}

	status := strings.ToLower(strings.TrimSpace(e.StockStatus))
	switch status {
	case "blocked", "captcha", "challenge", "anti_bot":
		v.Blocked = true
		return v
	}

	if e.InStock != nil {
		if *e.InStock {
			v.Availability = classifier.Available
		} else {
			v.Availability = classifier.Unavailable
		}
		return v
	}

	switch status {
	case "in_stock", "available":
		v.Availability = classifier.Available
	case "out_of_stock", "sold_out", "unavailable":
		v.Availability = classifier.Unavailable
	default:
		v.Availability = classifier.Unknown
	}
	return v
}

func (e *stockEnvelope) price() string {
	raw := strings.TrimSpace(string(e.Price))
	if raw == "" || raw == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(e.Price, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var n json.Number
	if err := json.Unmarshal(e.Price, &n); err == nil {
		return "€" + n.String()
	}
	return ""
}
