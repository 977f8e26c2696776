package httputil

import (
	"net/http"
	"net/url"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"

	"shopmon/config"
)

type Clients struct {
	Scraping *http.Client // hardened, for storefront pages
	API      *http.Client // plain, for the delegate and webhooks
}

// NewClients builds the two HTTP clients the daemon uses. The scraping
// client routes through the optional proxy and carries the Cloudflare
// bypass round tripper so its TLS profile resembles a browser.
func NewClients(proxyCfg *config.ProxyConfig) *Clients {
	transport := &http.Transport{
		MaxIdleConnsPerHost: 4,
	}
	if proxyCfg.URL != "" {
		if proxyURL, err := url.Parse(proxyCfg.URL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	scraping := &http.Client{
		Timeout:   30 * time.Second,
		Transport: cloudflarebp.AddCloudFlareByPass(transport),
	}

	return &Clients{
		Scraping: scraping,
		API:      &http.Client{Timeout: 30 * time.Second},
	}
}
