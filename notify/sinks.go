package notify

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/go-resty/resty/v2"

	"shopmon/models"
)

// LogNotifier writes restock events to the process log. Always on.
type LogNotifier struct{}

func (LogNotifier) Name() string { return "log" }

func (LogNotifier) Notify(ctx context.Context, ev models.RestockEvent) error {
	price := ev.Price
	if price == "" {
		price = "unknown price"
	}
	log.Printf("RESTOCK: %s / %s back in stock at %s (%s)", ev.ProductName, ev.VariantLabel, price, ev.URL)
	return nil
}

// WebhookNotifier POSTs the event JSON to a configured URL.
type WebhookNotifier struct {
	client *resty.Client
}

func NewWebhookNotifier(webhookURL string, httpClient *http.Client) *WebhookNotifier {
	client := resty.NewWithClient(httpClient).
		SetBaseURL(webhookURL).
		SetHeader("Content-Type", "application/json")
	return &WebhookNotifier{client: client}
}

func (WebhookNotifier) Name() string { return "webhook" }

func (n *WebhookNotifier) Notify(ctx context.Context, ev models.RestockEvent) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(ev).
		Post("")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned %d", resp.StatusCode())
	}
	return nil
}
