package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"shopmon/classifier"
	"shopmon/models"
	"shopmon/scraper"
)

// Key addresses one variant's watcher.
type Key struct {
	ProductID uuid.UUID
	VariantID uuid.UUID
}

func (k Key) String() string {
	return k.ProductID.String()[:8] + "/" + k.VariantID.String()[:8]
}

// watcher owns one variant's polling goroutine. errs is the streak of
// consecutive relevant errors, guarded by the monitor's mutex; a fresh
// watcher starts the streak at zero.
type watcher struct {
	key    Key
	cancel context.CancelFunc
	done   chan struct{}
	errs   int
}

// StartVariant arms a repeating watcher for the variant: an immediate
// check, then one per interval. Starting a running variant is a no-op.
func (m *Monitor) StartVariant(ctx context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.productLocked(key.ProductID)
	if p == nil {
		return ErrProductNotFound
	}
	v := p.Variant(key.VariantID)
	if v == nil {
		return ErrVariantNotFound
	}
	m.startWatcherLocked(p, v)
	m.persistLocked(ctx)
	return nil
}

// StopVariant cancels the variant's watcher. Once it returns no new
// check starts; an in-flight check still completes and applies.
func (m *Monitor) StopVariant(ctx context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.productLocked(key.ProductID)
	if p == nil {
		return ErrProductNotFound
	}
	if p.Variant(key.VariantID) == nil {
		return ErrVariantNotFound
	}

	w, ok := m.watchers[key]
	if !ok {
		return nil
	}
	m.stopWatcherLocked(key, w)
	m.persistLocked(ctx)
	return nil
}

func (m *Monitor) StartProduct(ctx context.Context, productID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.productLocked(productID)
	if p == nil {
		return ErrProductNotFound
	}
	for _, v := range p.Variants {
		m.startWatcherLocked(p, v)
	}
	m.persistLocked(ctx)
	return nil
}

func (m *Monitor) StopProduct(ctx context.Context, productID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.productLocked(productID)
	if p == nil {
		return ErrProductNotFound
	}
	for _, v := range p.Variants {
		key := Key{ProductID: p.ID, VariantID: v.ID}
		if w, ok := m.watchers[key]; ok {
			m.stopWatcherLocked(key, w)
		}
	}
	m.persistLocked(ctx)
	return nil
}

func (m *Monitor) StartAll(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.products {
		for _, v := range p.Variants {
			m.startWatcherLocked(p, v)
		}
	}
	m.persistLocked(ctx)
}

func (m *Monitor) StopAll(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, w := range m.watchers {
		m.stopWatcherLocked(key, w)
	}
	m.persistLocked(ctx)
}

// InstantCheck runs one check for the variant right now, monitoring or
// not. It never arms a timer.
func (m *Monitor) InstantCheck(ctx context.Context, key Key) error {
	m.mu.Lock()
	p := m.productLocked(key.ProductID)
	var v *models.Variant
	if p != nil {
		v = p.Variant(key.VariantID)
	}
	m.mu.Unlock()

	if p == nil {
		return ErrProductNotFound
	}
	if v == nil {
		return ErrVariantNotFound
	}
	m.checkOnce(ctx, key, true)
	return nil
}

// CheckProduct runs one check for every variant of the product.
func (m *Monitor) CheckProduct(ctx context.Context, productID uuid.UUID) error {
	m.mu.Lock()
	p := m.productLocked(productID)
	var keys []Key
	if p != nil {
		for _, v := range p.Variants {
			keys = append(keys, Key{ProductID: p.ID, VariantID: v.ID})
		}
	}
	m.mu.Unlock()

	if p == nil {
		return ErrProductNotFound
	}
	for _, key := range keys {
		m.checkOnce(ctx, key, true)
	}
	return nil
}

const (
	staggerStep      = 250 * time.Millisecond
	staggerJitterMax = int64(500 * time.Millisecond)
)

// InstantCheckAll sweeps every variant of every product with staggered
// launches so a large tracked set does not burst at once.
func (m *Monitor) InstantCheckAll(ctx context.Context) {
	type launch struct {
		key   Key
		delay time.Duration
	}

	m.mu.Lock()
	var launches []launch
	for _, p := range m.products {
		for _, v := range p.Variants {
			delay := time.Duration(len(launches))*staggerStep + time.Duration(m.rng.Int63n(staggerJitterMax))
			launches = append(launches, launch{key: Key{ProductID: p.ID, VariantID: v.ID}, delay: delay})
		}
	}
	m.mu.Unlock()

	if len(launches) == 0 {
		return
	}
	log.Printf("Monitor: instant check of %d variant(s)", len(launches))

	for _, l := range launches {
		go func(l launch) {
			m.clock.Sleep(ctx, l.delay)
			m.checkOnce(ctx, l.key, true)
		}(l)
	}
}

func (m *Monitor) startWatcherLocked(p *models.Product, v *models.Variant) {
	key := Key{ProductID: p.ID, VariantID: v.ID}
	if _, ok := m.watchers[key]; ok {
		return
	}

	ctx, cancel := context.WithCancel(m.baseCtx)
	w := &watcher{key: key, cancel: cancel, done: make(chan struct{})}
	m.watchers[key] = w
	v.IsMonitoring = true
	p.IsMonitoring = true

	go m.runWatcher(ctx, w, p.Interval())
}

func (m *Monitor) stopWatcherLocked(key Key, w *watcher) {
	w.cancel()
	delete(m.watchers, key)

	if p := m.productLocked(key.ProductID); p != nil {
		if v := p.Variant(key.VariantID); v != nil {
			v.IsMonitoring = false
		}
		p.IsMonitoring = p.MonitoringCount() > 0
	}
}

func (m *Monitor) runWatcher(ctx context.Context, w *watcher, interval time.Duration) {
	defer close(w.done)

	m.checkOnce(ctx, w.key, false)

	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			// A tick can race the cancel; never start a check afterwards.
			if ctx.Err() != nil {
				return
			}
			m.checkOnce(ctx, w.key, false)
		}
	}
}

func (m *Monitor) checkOnce(ctx context.Context, key Key, instant bool) {
	if ctx.Err() != nil {
		return
	}

	m.mu.Lock()
	p := m.productLocked(key.ProductID)
	var v *models.Variant
	if p != nil {
		v = p.Variant(key.VariantID)
	}
	if p == nil || v == nil {
		m.mu.Unlock()
		return
	}
	target := scraper.Target{ProductID: p.ID, URL: v.URL, Site: p.Site, UserAgent: p.CustomUserAgent}
	m.mu.Unlock()

	out, err := m.checker.Check(ctx, target)
	m.apply(ctx, key, out, err, instant)
}

// apply folds one check result into the model, the logbook and, on a
// restock, the notifier. Last writer wins at the variant level.
func (m *Monitor) apply(ctx context.Context, key Key, out *scraper.Outcome, err error, instant bool) {
	// A canceled check is a stop, not a failure.
	if err != nil && errors.Is(err, context.Canceled) {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.productLocked(key.ProductID)
	if p == nil {
		return
	}
	v := p.Variant(key.VariantID)
	if v == nil {
		return
	}

	if p.Debug {
		if err != nil {
			log.Printf("Monitor: debug %s %q: %v", key, v.Label, err)
		} else {
			log.Printf("Monitor: debug %s %q: status=%d availability=%s blocked=%t price=%q rule=%s via=%s",
				key, v.Label, out.StatusCode, out.Verdict.Availability, out.Verdict.Blocked,
				out.Verdict.Price, out.Verdict.Rule, out.Via)
		}
	}

	now := m.clock.Now()
	checked := now
	v.LastChecked = &checked
	v.Checks++
	p.Checks++
	p.UpdatedAt = now

	entry := models.LogEntry{
		Time:         now,
		ProductID:    p.ID,
		ProductName:  p.Name,
		VariantID:    v.ID,
		VariantLabel: v.Label,
	}

	if err != nil {
		v.Errors++
		p.Errors++
		entry.Status = models.LogNetworkError
		entry.Message = err.Error()
		m.recordFailureLocked(ctx, key, p, v, entry)
		m.persistLocked(ctx)
		return
	}

	if out.StatusCode > 0 {
		v.LastStatusCode = out.StatusCode
	}
	entry.HTTPStatus = out.StatusCode
	entry.ResponseMS = out.Elapsed.Milliseconds()

	if out.Verdict.Blocked {
		v.Errors++
		p.Errors++
		entry.Status = models.LogAntiBot
		entry.Message = "anti-bot response"
		if out.Verdict.Marker != "" {
			entry.Message = "anti-bot response: " + out.Verdict.Marker
		}
		m.recordFailureLocked(ctx, key, p, v, entry)
		m.persistLocked(ctx)
		return
	}

	if out.Verdict.Availability == classifier.Unknown {
		v.Errors++
		p.Errors++
		entry.Status = models.LogGenericError
		entry.Message = "page state undetermined, keeping previous availability"
		m.recordFailureLocked(ctx, key, p, v, entry)
		m.persistLocked(ctx)
		return
	}

	v.Successes++
	p.Successes++
	if w := m.watchers[key]; w != nil {
		w.errs = 0
	}
	if out.Verdict.Price != "" {
		v.Price = out.Verdict.Price
	}

	newAvail := out.Verdict.Availability == classifier.Available
	if newAvail != v.IsAvailable {
		v.IsAvailable = newAvail
		p.RecordChange(models.AvailabilityChange{
			VariantID:    v.ID,
			VariantLabel: v.Label,
			From:         !newAvail,
			To:           newAvail,
			Price:        v.Price,
			At:           now,
		})

		entry.Status = models.LogAvailabilityChanged
		if newAvail {
			entry.Message = "now available"
			if v.Price != "" {
				entry.Message = "now available at " + v.Price
			}
			m.events.Publish(models.RestockEvent{
				ProductID:    p.ID,
				ProductName:  p.Name,
				VariantID:    v.ID,
				VariantLabel: v.Label,
				Price:        v.Price,
				URL:          v.URL,
				At:           now,
			})
		} else {
			entry.Message = "no longer available"
		}
	} else {
		entry.Status = models.LogSuccess
		if instant {
			entry.Status = models.LogInstantCheck
		}
		if newAvail {
			entry.Message = "available"
			if v.Price != "" {
				entry.Message = "available at " + v.Price
			}
		} else {
			entry.Message = "unavailable"
		}
	}

	m.book.Append(ctx, entry)
	m.persistLocked(ctx)
}

// recordFailureLocked appends the failure entry and advances the
// watcher's error streak, auto-pausing at the product's retry budget.
// Checks without a live watcher never touch a streak.
func (m *Monitor) recordFailureLocked(ctx context.Context, key Key, p *models.Product, v *models.Variant, entry models.LogEntry) {
	m.book.Append(ctx, entry)

	w := m.watchers[key]
	if w == nil {
		return
	}
	w.errs++
	if w.errs < p.Retries() {
		return
	}

	m.stopWatcherLocked(key, w)
	m.book.Append(ctx, models.LogEntry{
		Time:         m.clock.Now(),
		ProductID:    p.ID,
		ProductName:  p.Name,
		VariantID:    v.ID,
		VariantLabel: v.Label,
		Status:       models.LogAutoPaused,
		Message:      fmt.Sprintf("monitoring paused after %d consecutive errors", w.errs),
	})
	log.Printf("Monitor: auto-paused %s / %s after %d consecutive errors", p.Name, v.Label, w.errs)
}
