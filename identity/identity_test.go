package identity

import (
	"context"
	"testing"
	"time"

	"shopmon/config"
)

func newTestBuilder(cfg *config.IdentityConfig) *Builder {
	b := NewBuilder(cfg)
	b.sleep = func(time.Duration) {}
	return b
}

func TestPickStaysInPools(t *testing.T) {
	b := newTestBuilder(&config.IdentityConfig{})

	agents := make(map[string]bool)
	for _, ua := range defaultUserAgents {
		agents[ua] = true
	}
	locales := make(map[string]bool)
	for _, l := range defaultLocales {
		locales[l] = true
	}

	for i := 0; i < 100; i++ {
		id := b.Pick()
		if !agents[id.UserAgent] {
			t.Fatalf("user agent not from pool: %q", id.UserAgent)
		}
		if !locales[id.AcceptLanguage] {
			t.Fatalf("accept-language not from pool: %q", id.AcceptLanguage)
		}
	}
}

func TestPickFixedIdentity(t *testing.T) {
	b := newTestBuilder(&config.IdentityConfig{
		FixedUserAgent:      "TestAgent/1.0",
		FixedAcceptLanguage: "de-DE,de;q=0.9",
	})

	for i := 0; i < 10; i++ {
		id := b.Pick()
		if id.UserAgent != "TestAgent/1.0" {
			t.Fatalf("expected pinned user agent, got %q", id.UserAgent)
		}
		if id.AcceptLanguage != "de-DE,de;q=0.9" {
			t.Fatalf("expected pinned accept-language, got %q", id.AcceptLanguage)
		}
	}
}

func TestExtraPoolEntries(t *testing.T) {
	b := newTestBuilder(&config.IdentityConfig{
		ExtraUserAgents: []string{"ExtraAgent/2.0"},
	})

	if len(b.userAgents) != len(defaultUserAgents)+1 {
		t.Fatalf("expected %d user agents, got %d", len(defaultUserAgents)+1, len(b.userAgents))
	}
}

func TestNewRequestHeaders(t *testing.T) {
	b := newTestBuilder(&config.IdentityConfig{})

	req, err := b.NewRequest(context.Background(), "https://shop.example/products/figure")
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}

	if req.Header.Get("User-Agent") == "" {
		t.Error("missing User-Agent")
	}
	if req.Header.Get("Accept-Language") == "" {
		t.Error("missing Accept-Language")
	}
	if got := req.Header.Get("Sec-Fetch-Mode"); got != "navigate" {
		t.Errorf("Sec-Fetch-Mode = %q, want navigate", got)
	}
	if got := req.Header.Get("Upgrade-Insecure-Requests"); got != "1" {
		t.Errorf("Upgrade-Insecure-Requests = %q, want 1", got)
	}
	if got := req.Header.Get("Referer"); got != "https://shop.example/" {
		t.Errorf("Referer = %q, want site origin", got)
	}
}

func TestNewRequestAsPinsAgent(t *testing.T) {
	b := newTestBuilder(&config.IdentityConfig{})

	req, err := b.NewRequestAs(context.Background(), "https://shop.example/products/figure", Identity{
		UserAgent: "pinned-check/1.0",
	})
	if err != nil {
		t.Fatalf("NewRequestAs failed: %v", err)
	}

	if got := req.Header.Get("User-Agent"); got != "pinned-check/1.0" {
		t.Errorf("User-Agent = %q, want the pinned agent", got)
	}
	if got := req.Header.Get("Accept-Language"); got != defaultLocales[0] {
		t.Errorf("Accept-Language = %q, want %q", got, defaultLocales[0])
	}
	if got := req.Header.Get("Sec-Fetch-Mode"); got != "navigate" {
		t.Errorf("Sec-Fetch-Mode = %q, want navigate", got)
	}
}

func TestPacingWithinBounds(t *testing.T) {
	b := NewBuilder(&config.IdentityConfig{})

	var delays []time.Duration
	b.sleep = func(d time.Duration) {
		delays = append(delays, d)
	}

	for i := 0; i < 20; i++ {
		if _, err := b.NewRequest(context.Background(), "https://shop.example/p"); err != nil {
			t.Fatalf("NewRequest failed: %v", err)
		}
	}

	for _, d := range delays {
		if d < minPacing || d >= maxPacing {
			t.Fatalf("pacing delay %s outside [%s, %s)", d, minPacing, maxPacing)
		}
	}
}

func TestPacingRespectsContext(t *testing.T) {
	b := NewBuilder(&config.IdentityConfig{})
	b.sleep = func(time.Duration) {
		time.Sleep(200 * time.Millisecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := b.NewRequest(ctx, "https://shop.example/p"); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
