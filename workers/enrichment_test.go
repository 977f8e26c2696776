package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"shopmon/config"
	"shopmon/logbook"
	"shopmon/models"
	"shopmon/monitor"
	"shopmon/scraper"
)

type memStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{blobs: make(map[string][]byte)}
}

func (m *memStore) Save(ctx context.Context, key string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), blob...)
	return nil
}

func (m *memStore) Load(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blobs[key], nil
}

func (m *memStore) Close() error { return nil }

type nopPublisher struct{}

func (nopPublisher) Publish(ev models.RestockEvent) {}

// stagedFetcher serves bodies in order, repeating the last one.
type stagedFetcher struct {
	mu     sync.Mutex
	bodies []string
	errs   []error
	calls  int
}

func (f *stagedFetcher) Fetch(ctx context.Context, pageURL string) (*scraper.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i >= len(f.bodies) {
		i = len(f.bodies) - 1
	}
	if f.errs != nil && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return &scraper.Result{StatusCode: 200, Body: []byte(f.bodies[i]), FinalURL: pageURL}, nil
}

func (f *stagedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newEnrichmentFixture(t *testing.T, fetcher scraper.Fetcher) (*EnrichmentWorker, *monitor.Monitor) {
	t.Helper()
	store := newMemStore()
	cfg := &config.Config{Defaults: config.DefaultsConfig{IntervalSeconds: 300, MaxRetries: 5}}
	mon := monitor.New(cfg, store, nil, fetcher, logbook.New(store), nopPublisher{}, monitor.NewClock())
	t.Cleanup(func() { mon.Shutdown(time.Second) })
	return NewEnrichmentWorker(mon, fetcher), mon
}

const nameOnlyPage = `<html><body><h1>Sammelfigur Gold</h1></body></html>`

const fullPage = `<html><head>
	<meta property="og:image" content="https://cdn.example/figur.jpg">
	<meta property="og:description" content="Limitierte Sammelfigur aus der Gold-Serie.">
</head><body><h1>Sammelfigur Gold</h1></body></html>`

func TestEnrichmentFillsMetadata(t *testing.T) {
	fetcher := &stagedFetcher{bodies: []string{nameOnlyPage, fullPage}}
	w, mon := newEnrichmentFixture(t, fetcher)
	ctx := context.Background()

	p, err := mon.AddProduct(ctx, "https://shop.example/sammelfigur-gold", monitor.AddOptions{})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if p.ImageURL != "" || p.Description != "" {
		t.Fatalf("expected bare metadata at add time, got %+v", p)
	}

	w.processBatch(ctx, 10)

	got, err := mon.Product(p.ID)
	if err != nil {
		t.Fatalf("product: %v", err)
	}
	if got.ImageURL != "https://cdn.example/figur.jpg" {
		t.Fatalf("expected image filled, got %q", got.ImageURL)
	}
	if got.Description == "" {
		t.Fatal("expected description filled")
	}

	// The product is complete now; further batches must leave it alone.
	before := fetcher.callCount()
	w.processBatch(ctx, 10)
	if fetcher.callCount() != before {
		t.Fatal("complete product must not be re-fetched")
	}
}

func TestEnrichmentGivesUpAfterMaxAttempts(t *testing.T) {
	boom := errors.New("connection reset")
	fetcher := &stagedFetcher{
		bodies: []string{nameOnlyPage, "", "", ""},
		errs:   []error{nil, boom, boom, boom},
	}
	w, mon := newEnrichmentFixture(t, fetcher)
	ctx := context.Background()

	if _, err := mon.AddProduct(ctx, "https://shop.example/sammelfigur-gold", monitor.AddOptions{}); err != nil {
		t.Fatalf("add: %v", err)
	}

	for i := 0; i < maxEnrichAttempts; i++ {
		w.processBatch(ctx, 10)
	}
	if got := fetcher.callCount(); got != 1+maxEnrichAttempts {
		t.Fatalf("expected %d fetches, got %d", 1+maxEnrichAttempts, got)
	}

	w.processBatch(ctx, 10)
	if got := fetcher.callCount(); got != 1+maxEnrichAttempts {
		t.Fatal("exhausted product must be skipped")
	}
}

func TestEnrichmentKeepsExtractedName(t *testing.T) {
	renamed := `<html><head>
		<meta property="og:image" content="https://cdn.example/figur.jpg">
		<meta property="og:description" content="Limitierte Sammelfigur aus der Gold-Serie.">
	</head><body><h1>Umbenannte Figur</h1></body></html>`
	fetcher := &stagedFetcher{bodies: []string{nameOnlyPage, renamed}}
	w, mon := newEnrichmentFixture(t, fetcher)
	ctx := context.Background()

	p, err := mon.AddProduct(ctx, "https://shop.example/anderes-produkt", monitor.AddOptions{})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if p.Name != "Sammelfigur Gold" {
		t.Fatalf("unexpected name %q", p.Name)
	}

	w.processBatch(ctx, 10)

	got, _ := mon.Product(p.ID)
	if got.Name != "Sammelfigur Gold" {
		t.Fatalf("extracted name must not be overwritten, got %q", got.Name)
	}
	if got.ImageURL != "https://cdn.example/figur.jpg" {
		t.Fatalf("expected image filled, got %q", got.ImageURL)
	}
	if got.Description == "" {
		t.Fatal("expected description filled")
	}
}
