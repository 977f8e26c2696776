package scraper

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"shopmon/classifier"
	"shopmon/config"
	"shopmon/models"
)

// Target identifies the page a check runs against. A non-empty
// UserAgent pins the browser identity for this product's requests.
type Target struct {
	ProductID uuid.UUID
	URL       string
	Site      models.Site
	UserAgent string
}

// Outcome is the result of one availability check, whichever path
// served it. StatusCode is 0 when the path cannot observe the
// storefront's response code.
type Outcome struct {
	Verdict     classifier.Verdict
	StatusCode  int
	Elapsed     time.Duration
	Via         string
	ProductName string
}

type Checker interface {
	Check(ctx context.Context, target Target) (*Outcome, error)
}

// New assembles the check pipeline: the remote delegate first when one
// is configured, with direct fetch + local classification as fallback.
func New(cfg config.DelegateConfig, fetcher Fetcher, cls *classifier.Classifier, apiClient *http.Client) Checker {
	direct := &DirectChecker{Fetcher: fetcher, Classifier: cls}
	if cfg.BaseURL == "" {
		return direct
	}
	return &Cascade{
		Remote: NewRemoteChecker(cfg, apiClient),
		Direct: direct,
	}
}

// DirectChecker fetches the page itself and classifies the HTML.
type DirectChecker struct {
	Fetcher    Fetcher
	Classifier *classifier.Classifier
}

// identityFetcher is the optional capability of pinning the browser
// identity for a single request.
type identityFetcher interface {
	FetchAs(ctx context.Context, pageURL, userAgent string) (*Result, error)
}

func (c *DirectChecker) Check(ctx context.Context, target Target) (*Outcome, error) {
	res, err := c.fetch(ctx, target)
	if err != nil {
		return nil, err
	}

	verdict := c.Classifier.Classify(classifier.Input{
		StatusCode: res.StatusCode,
		Body:       string(res.Body),
		URL:        res.FinalURL,
		Site:       target.Site,
	})

	return &Outcome{
		Verdict:    verdict,
		StatusCode: res.StatusCode,
		Elapsed:    res.Elapsed,
		Via:        "direct",
	}, nil
}

func (c *DirectChecker) fetch(ctx context.Context, target Target) (*Result, error) {
	if target.UserAgent != "" {
		if f, ok := c.Fetcher.(identityFetcher); ok {
			return f.FetchAs(ctx, target.URL, target.UserAgent)
		}
	}
	return c.Fetcher.Fetch(ctx, target.URL)
}
