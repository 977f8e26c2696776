package scraper

import (
	"context"
	"io"
	"net/http"
	"time"

	"shopmon/identity"
)

// Storefront pages are small; anything past this is not a product page.
const maxBodyBytes = 2 << 20

// Fetcher retrieves a storefront page.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (*Result, error)
}

// Result is one fetched page. FinalURL is the URL after redirects.
type Result struct {
	StatusCode int
	Body       []byte
	FinalURL   string
	Elapsed    time.Duration
}

// DirectFetcher issues identity-built requests on the hardened
// scraping client.
type DirectFetcher struct {
	identity *identity.Builder
	client   *http.Client
}

func NewDirectFetcher(builder *identity.Builder, client *http.Client) *DirectFetcher {
	return &DirectFetcher{identity: builder, client: client}
}

func (f *DirectFetcher) Fetch(ctx context.Context, pageURL string) (*Result, error) {
	req, err := f.identity.NewRequest(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return f.do(req, pageURL)
}

// FetchAs fetches under a pinned user agent instead of a pooled one.
func (f *DirectFetcher) FetchAs(ctx context.Context, pageURL, userAgent string) (*Result, error) {
	req, err := f.identity.NewRequestAs(ctx, pageURL, identity.Identity{UserAgent: userAgent})
	if err != nil {
		return nil, err
	}
	return f.do(req, pageURL)
}

func (f *DirectFetcher) do(req *http.Request, pageURL string) (*Result, error) {
	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}

	finalURL := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Result{
		StatusCode: resp.StatusCode,
		Body:       body,
		FinalURL:   finalURL,
		Elapsed:    time.Since(start),
	}, nil
}
