package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"shopmon/config"
	"shopmon/logbook"
	"shopmon/models"
	"shopmon/pageinfo"
	"shopmon/scraper"
	"shopmon/storage"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrVariantNotFound = errors.New("variant not found")
	ErrProductExists   = errors.New("product already tracked")
	ErrLastVariant     = errors.New("a product keeps at least one variant")
)

// Publisher receives restock events. Satisfied by notify.Dispatcher.
type Publisher interface {
	Publish(ev models.RestockEvent)
}

// Monitor owns the product list and one watcher per monitored variant.
// Model mutations and persistence writes are serialized under mu; the
// checks themselves run outside it.
type Monitor struct {
	cfg     *config.Config
	store   storage.Store
	checker scraper.Checker
	fetcher scraper.Fetcher
	book    *logbook.Book
	events  Publisher
	clock   Clock

	baseCtx   context.Context
	cancelAll context.CancelFunc

	mu       sync.Mutex
	products []*models.Product
	watchers map[Key]*watcher
	rng      *rand.Rand
}

func New(cfg *config.Config, store storage.Store, checker scraper.Checker, fetcher scraper.Fetcher, book *logbook.Book, events Publisher, clock Clock) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		cfg:       cfg,
		store:     store,
		checker:   checker,
		fetcher:   fetcher,
		book:      book,
		events:    events,
		clock:     clock,
		baseCtx:   ctx,
		cancelAll: cancel,
		watchers:  make(map[Key]*watcher),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Load reads the persisted product list without touching watchers or
// monitoring flags. One-shot flows use it; the daemon uses Restore.
func (m *Monitor) Load(ctx context.Context) error {
	data, err := m.store.Load(ctx, storage.KeyProducts)
	if err != nil {
		return err
	}
	if data == nil {
		return nil
	}

	var products []*models.Product
	if err := json.Unmarshal(data, &products); err != nil {
		log.Printf("Monitor: discarding corrupt products blob: %v", err)
		return nil
	}

	m.mu.Lock()
	m.products = products
	m.mu.Unlock()
	return nil
}

// Restore loads the persisted product list and restarts the watchers
// that were monitoring at the last shutdown. Stale monitoring flags are
// cleared first so the flag only ever reflects a live watcher.
func (m *Monitor) Restore(ctx context.Context) error {
	if err := m.Load(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var resume []Key
	for _, p := range m.products {
		p.IsMonitoring = false
		for _, v := range p.Variants {
			if v.IsMonitoring {
				v.IsMonitoring = false
				resume = append(resume, Key{ProductID: p.ID, VariantID: v.ID})
			}
		}
	}
	for _, key := range resume {
		p := m.productLocked(key.ProductID)
		if p == nil {
			continue
		}
		if v := p.Variant(key.VariantID); v != nil {
			m.startWatcherLocked(p, v)
		}
	}
	m.persistLocked(ctx)

	log.Printf("Monitor: restored %d product(s), resumed %d watcher(s)", len(m.products), len(resume))
	return nil
}

// Shutdown cancels every watcher and waits up to the timeout for their
// goroutines to wind down. Monitoring flags are left untouched so the
// next Restore resumes them.
func (m *Monitor) Shutdown(timeout time.Duration) {
	m.cancelAll()

	m.mu.Lock()
	dones := make([]chan struct{}, 0, len(m.watchers))
	for _, w := range m.watchers {
		dones = append(dones, w.done)
	}
	m.mu.Unlock()

	deadline := time.After(timeout)
	for _, done := range dones {
		select {
		case <-done:
		case <-deadline:
			return
		}
	}
}

// AddOptions control how a new product is tracked. Zero values fall
// back to the configured defaults. Variants narrows the discovered set
// to the listed labels; empty keeps everything.
type AddOptions struct {
	IntervalSeconds int
	MaxRetries      int
	AutoStart       bool
	Variants        []string
}

// AddProduct fetches the page, discovers its variants and starts
// tracking it. A page with no recognizable product name is rejected:
// it is presumed not to be a product page.
func (m *Monitor) AddProduct(ctx context.Context, pageURL string, opts AddOptions) (*models.Product, error) {
	if existing := m.findByURL(pageURL); existing != nil {
		return existing, ErrProductExists
	}

	res, err := m.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch product page: %w", err)
	}

	info, err := pageinfo.Extract(string(res.Body), res.FinalURL)
	if err != nil {
		return nil, err
	}

	if len(opts.Variants) > 0 {
		var keep []pageinfo.DiscoveredVariant
		for _, dv := range info.Variants {
			for _, want := range opts.Variants {
				if strings.EqualFold(dv.Label, want) {
					keep = append(keep, dv)
					break
				}
			}
		}
		if len(keep) == 0 {
			return nil, fmt.Errorf("none of the discovered variants match the requested selection")
		}
		info.Variants = keep
	}

	now := m.clock.Now()
	interval := opts.IntervalSeconds
	if interval <= 0 {
		interval = m.cfg.Defaults.IntervalSeconds
	}
	retries := opts.MaxRetries
	if retries <= 0 {
		retries = m.cfg.Defaults.MaxRetries
	}

	p := &models.Product{
		ID:              uuid.New(),
		URL:             pageURL,
		Name:            info.Name,
		ImageURL:        info.ImageURL,
		Description:     info.Description,
		Site:            models.SiteForURL(pageURL),
		IntervalSeconds: interval,
		MaxRetries:      retries,
		AutoStart:       opts.AutoStart,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, dv := range info.Variants {
		p.Variants = append(p.Variants, &models.Variant{
			ID:          uuid.New(),
			Label:       dv.Label,
			URL:         dv.URL,
			SKU:         dv.SKU,
			Family:      dv.Family,
			IsAvailable: dv.Available,
			Price:       dv.Price,
		})
	}

	m.mu.Lock()
	for _, other := range m.products {
		if other.URL == pageURL {
			clone := other.Clone()
			m.mu.Unlock()
			return clone, ErrProductExists
		}
	}
	m.products = append(m.products, p)
	if p.AutoStart {
		for _, v := range p.Variants {
			m.startWatcherLocked(p, v)
		}
	}
	m.persistLocked(ctx)
	m.book.Append(ctx, models.LogEntry{
		ProductID:   p.ID,
		ProductName: p.Name,
		Status:      models.LogSuccess,
		Message:     fmt.Sprintf("tracking %d variant(s)", len(p.Variants)),
	})
	clone := p.Clone()
	m.mu.Unlock()

	log.Printf("Monitor: added %s (%d variants, site=%s)", p.Name, len(p.Variants), p.Site)
	return clone, nil
}

// RemoveProduct stops the product's watchers and drops it. Its log
// entries stay in the book until cleared.
func (m *Monitor) RemoveProduct(ctx context.Context, productID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i, p := range m.products {
		if p.ID == productID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrProductNotFound
	}

	p := m.products[idx]
	for _, v := range p.Variants {
		key := Key{ProductID: p.ID, VariantID: v.ID}
		if w, ok := m.watchers[key]; ok {
			m.stopWatcherLocked(key, w)
		}
	}
	m.products = append(m.products[:idx], m.products[idx+1:]...)
	m.persistLocked(ctx)

	log.Printf("Monitor: removed %s", p.Name)
	return nil
}

// AddVariant appends a variant to a tracked product. An empty URL falls
// back to the product page.
func (m *Monitor) AddVariant(ctx context.Context, productID uuid.UUID, label, variantURL, sku string) (*models.Variant, error) {
	if label == "" {
		return nil, fmt.Errorf("variant label required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.productLocked(productID)
	if p == nil {
		return nil, ErrProductNotFound
	}
	if variantURL == "" {
		variantURL = p.URL
	}

	v := &models.Variant{
		ID:     uuid.New(),
		Label:  label,
		URL:    variantURL,
		SKU:    sku,
		Family: models.FamilyForLabel(label, sku),
	}
	p.Variants = append(p.Variants, v)
	p.UpdatedAt = m.clock.Now()
	m.persistLocked(ctx)

	log.Printf("Monitor: added variant %q to %s", label, p.Name)
	vc := *v
	return &vc, nil
}

// RemoveVariant stops the variant's watcher and drops it, leaving its
// siblings untouched. The last variant cannot be removed; remove the
// product instead.
func (m *Monitor) RemoveVariant(ctx context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.productLocked(key.ProductID)
	if p == nil {
		return ErrProductNotFound
	}
	idx := -1
	for i, v := range p.Variants {
		if v.ID == key.VariantID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrVariantNotFound
	}
	if len(p.Variants) == 1 {
		return ErrLastVariant
	}

	if w, ok := m.watchers[key]; ok {
		m.stopWatcherLocked(key, w)
	}
	label := p.Variants[idx].Label
	p.Variants = append(p.Variants[:idx], p.Variants[idx+1:]...)
	p.IsMonitoring = p.MonitoringCount() > 0
	p.UpdatedAt = m.clock.Now()
	m.persistLocked(ctx)

	log.Printf("Monitor: removed variant %q from %s", label, p.Name)
	return nil
}

// Canceled watchers get this long to observe cancellation before the
// replacement watcher starts.
const settleDelay = 500 * time.Millisecond

// SettingsUpdate carries the settings UpdateSettings may change. Zero
// ints keep the current value; nil pointers keep, non-nil set (an empty
// *CustomUserAgent clears the override).
type SettingsUpdate struct {
	IntervalSeconds int
	MaxRetries      int
	AutoStart       *bool
	CustomUserAgent *string
	Debug           *bool
}

// UpdateSettings changes a product's monitoring policy. An interval
// change restarts the product's running watchers so the new cadence
// takes effect.
func (m *Monitor) UpdateSettings(ctx context.Context, productID uuid.UUID, upd SettingsUpdate) error {
	m.mu.Lock()
	p := m.productLocked(productID)
	if p == nil {
		m.mu.Unlock()
		return ErrProductNotFound
	}

	intervalChanged := upd.IntervalSeconds > 0 && upd.IntervalSeconds != p.IntervalSeconds
	if upd.IntervalSeconds > 0 {
		p.IntervalSeconds = upd.IntervalSeconds
	}
	if upd.MaxRetries > 0 {
		p.MaxRetries = upd.MaxRetries
	}
	if upd.AutoStart != nil {
		p.AutoStart = *upd.AutoStart
	}
	if upd.CustomUserAgent != nil {
		p.CustomUserAgent = *upd.CustomUserAgent
	}
	if upd.Debug != nil {
		p.Debug = *upd.Debug
	}
	p.UpdatedAt = m.clock.Now()

	var restart []Key
	if intervalChanged {
		for _, v := range p.Variants {
			key := Key{ProductID: p.ID, VariantID: v.ID}
			if w, ok := m.watchers[key]; ok {
				m.stopWatcherLocked(key, w)
				restart = append(restart, key)
			}
		}
	}
	m.persistLocked(ctx)
	m.mu.Unlock()

	if len(restart) == 0 {
		return nil
	}

	m.clock.Sleep(ctx, settleDelay)

	m.mu.Lock()
	for _, key := range restart {
		p := m.productLocked(key.ProductID)
		if p == nil {
			continue
		}
		if v := p.Variant(key.VariantID); v != nil {
			m.startWatcherLocked(p, v)
		}
	}
	m.persistLocked(ctx)
	m.mu.Unlock()

	log.Printf("Monitor: restarted %d watcher(s) at %ds interval", len(restart), upd.IntervalSeconds)
	return nil
}

// Products returns a deep copy of the tracked products.
func (m *Monitor) Products() []*models.Product {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p.Clone())
	}
	return out
}

// Product returns a deep copy of one product.
func (m *Monitor) Product(productID uuid.UUID) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.productLocked(productID)
	if p == nil {
		return nil, ErrProductNotFound
	}
	return p.Clone(), nil
}

// WatcherCount reports how many watchers are live.
func (m *Monitor) WatcherCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watchers)
}

func (m *Monitor) findByURL(pageURL string) *models.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.products {
		if p.URL == pageURL {
			return p.Clone()
		}
	}
	return nil
}

func (m *Monitor) productLocked(productID uuid.UUID) *models.Product {
	for _, p := range m.products {
		if p.ID == productID {
			return p
		}
	}
	return nil
}

func (m *Monitor) persistLocked(ctx context.Context) {
	data, err := json.Marshal(m.products)
	if err != nil {
		log.Printf("Monitor: marshal products failed: %v", err)
		return
	}
	if err := m.store.Save(ctx, storage.KeyProducts, data); err != nil {
		log.Printf("Monitor: persist failed: %v", err)
	}
}
