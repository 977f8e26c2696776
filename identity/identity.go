package identity

import (
	"context"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"shopmon/config"
)

// Builder assembles browser-shaped GET requests for storefront pages.
// Each request draws a random identity from the pools (or the pinned
// operator identity), carries a full desktop-browser header set, and is
// preceded by a randomized pacing delay so checks never fire in lockstep.

// Identity is the per-request browser persona.
type Identity struct {
	UserAgent      string
	AcceptLanguage string
}

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
}

var defaultLocales = []string{
	"de-DE,de;q=0.9,en;q=0.8",
	"en-US,en;q=0.9",
	"en-GB,en;q=0.9,de;q=0.7",
	"fr-FR,fr;q=0.9,en;q=0.8",
	"es-ES,es;q=0.9,en;q=0.8",
}

const (
	minPacing = 1 * time.Second
	maxPacing = 3 * time.Second
)

type Builder struct {
	userAgents []string
	locales    []string
	fixed      *Identity

	mu    sync.Mutex
	rng   *rand.Rand
	sleep func(time.Duration)
}

func NewBuilder(cfg *config.IdentityConfig) *Builder {
	b := &Builder{
		userAgents: append(append([]string{}, defaultUserAgents...), cfg.ExtraUserAgents...),
		locales:    append(append([]string{}, defaultLocales...), cfg.ExtraLocales...),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:      time.Sleep,
	}
	if cfg.FixedUserAgent != "" {
		lang := cfg.FixedAcceptLanguage
		if lang == "" {
			lang = defaultLocales[0]
		}
		b.fixed = &Identity{UserAgent: cfg.FixedUserAgent, AcceptLanguage: lang}
	}
	return b
}

// Pick returns the identity for the next request.
func (b *Builder) Pick() Identity {
	if b.fixed != nil {
		return *b.fixed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return Identity{
		UserAgent:      b.userAgents[b.rng.Intn(len(b.userAgents))],
		AcceptLanguage: b.locales[b.rng.Intn(len(b.locales))],
	}
}

// NewRequest paces, then builds a browser-shaped GET for the target URL.
// The pacing delay respects context cancellation.
func (b *Builder) NewRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	return b.build(ctx, rawURL, b.Pick())
}

// NewRequestAs builds the request under the given identity instead of
// drawing one from the pools. An empty AcceptLanguage falls back to the
// first built-in locale.
func (b *Builder) NewRequestAs(ctx context.Context, rawURL string, id Identity) (*http.Request, error) {
	if id.AcceptLanguage == "" {
		id.AcceptLanguage = defaultLocales[0]
	}
	return b.build(ctx, rawURL, id)
}

func (b *Builder) build(ctx context.Context, rawURL string, id Identity) (*http.Request, error) {
	if err := b.pace(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	applyHeaders(req, id)
	return req, nil
}

func (b *Builder) pace(ctx context.Context) error {
	b.mu.Lock()
	delay := minPacing + time.Duration(b.rng.Int63n(int64(maxPacing-minPacing)))
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.sleep(delay)
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func applyHeaders(req *http.Request, id Identity) {
	req.Header.Set("User-Agent", id.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", id.AcceptLanguage)
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Sec-Fetch-User", "?1")
	req.Header.Set("DNT", "1")

	if ua := id.UserAgent; strings.Contains(ua, "Chrome/") {
		req.Header.Set("sec-ch-ua", `"Chromium";v="126", "Not/A)Brand";v="8"`)
		req.Header.Set("sec-ch-ua-mobile", "?0")
		req.Header.Set("sec-ch-ua-platform", platformFor(ua))
	}

	if origin := originOf(req.URL); origin != "" {
		req.Header.Set("Referer", origin + "/")
	}
}

func platformFor(ua string) string {
	switch {
	case strings.Contains(ua, "Windows"):
		return `"Windows"`
	case strings.Contains(ua, "Macintosh"):
		return `"macOS"`
	default:
		return `"Linux"`
	}
}

func originOf(u *url.URL) string {
	if u == nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
