package workers

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"shopmon/models"
	"shopmon/monitor"
	"shopmon/pageinfo"
	"shopmon/scraper"
)

const maxEnrichAttempts = 3

// EnrichmentWorker re-fetches product pages to fill in cover metadata
// that was missing at add time: image and description. Attempt counts
// reset on restart.
type EnrichmentWorker struct {
	monitor   *monitor.Monitor
	fetcher   scraper.Fetcher
	triggerCh chan struct{}
	attempts  map[uuid.UUID]int
}

// NewEnrichmentWorker creates a new enrichment worker
func NewEnrichmentWorker(mon *monitor.Monitor, fetcher scraper.Fetcher) *EnrichmentWorker {
	return &EnrichmentWorker{
		monitor:   mon,
		fetcher:   fetcher,
		triggerCh: make(chan struct{}, 1),
		attempts:  make(map[uuid.UUID]int),
	}
}

// Trigger causes the worker to run immediately
func (w *EnrichmentWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

// Run starts the enrichment worker loop
func (w *EnrichmentWorker) Run(ctx context.Context, batchSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Enrichment worker stopping")
			return
		case <-ticker.C:
			w.processBatch(ctx, batchSize)
		case <-w.triggerCh:
			log.Println("Enrichment worker triggered manually")
			w.processBatch(ctx, batchSize)
		}
	}
}

func (w *EnrichmentWorker) processBatch(ctx context.Context, batchSize int) {
	var todo []*models.Product
	for _, p := range w.monitor.IncompleteProducts() {
		if w.attempts[p.ID] >= maxEnrichAttempts {
			continue
		}
		todo = append(todo, p)
		if len(todo) == batchSize {
			break
		}
	}

	if len(todo) == 0 {
		return
	}

	log.Printf("Enrichment: processing %d products", len(todo))

	for _, p := range todo {
		if ctx.Err() != nil {
			return
		}

		res, err := w.fetcher.Fetch(ctx, p.URL)
		if err != nil {
			w.recordFailure(p, err)
			continue
		}

		info, err := pageinfo.Extract(string(res.Body), res.FinalURL)
		if err != nil {
			w.recordFailure(p, err)
			continue
		}

		changed, err := w.monitor.ApplyPageInfo(ctx, p.ID, info)
		if err != nil {
			log.Printf("Enrichment: failed to update %s: %v", p.Name, err)
			continue
		}
		delete(w.attempts, p.ID)
		if changed {
			log.Printf("Enrichment: enriched %s", p.Name)
		}

		// Rate limit between requests
		time.Sleep(500 * time.Millisecond)
	}
}

func (w *EnrichmentWorker) recordFailure(p *models.Product, err error) {
	w.attempts[p.ID]++
	log.Printf("Enrichment: failed to enrich %s: %v", p.URL, err)
	if w.attempts[p.ID] >= maxEnrichAttempts {
		log.Printf("Enrichment: max attempts reached for %s, giving up", p.Name)
	}
}
