package logbook

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"shopmon/models"
	"shopmon/storage"
)

// Oldest entries fall off once the ring is full.
const ringCap = 500

// Book is the activity log: a newest-first ring of entries persisted
// through the blob store after every mutation. Store failures are
// logged and swallowed so a dead store never takes the engine down.
type Book struct {
	mu      sync.Mutex
	store   storage.Store
	entries []models.LogEntry
}

func New(store storage.Store) *Book {
	return &Book{store: store}
}

// Load restores the ring from the store. Missing or corrupt blobs
// start an empty ring.
func (b *Book) Load(ctx context.Context) error {
	data, err := b.store.Load(ctx, storage.KeyLogs)
	if err != nil {
		return err
	}
	if data == nil {
		return nil
	}

	var entries []models.LogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Printf("Logbook: discarding corrupt log blob: %v", err)
		return nil
	}
	if len(entries) > ringCap {
		entries = entries[:ringCap]
	}

	b.mu.Lock()
	b.entries = entries
	b.mu.Unlock()
	return nil
}

// Append records an entry at the head of the ring.
func (b *Book) Append(ctx context.Context, e models.LogEntry) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = append([]models.LogEntry{e}, b.entries...)
	if len(b.entries) > ringCap {
		b.entries = b.entries[:ringCap]
	}
	b.persistLocked(ctx)
}

// Snapshot returns a copy of the ring, newest first.
func (b *Book) Snapshot() []models.LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]models.LogEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

func (b *Book) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Clear drops every entry.
func (b *Book) Clear(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = nil
	b.persistLocked(ctx)
}

// ClearProduct drops the entries of one product.
func (b *Book) ClearProduct(ctx context.Context, productID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.entries[:0]
	for _, e := range b.entries {
		if e.ProductID != productID {
			kept = append(kept, e)
		}
	}
	b.entries = kept
	b.persistLocked(ctx)
}

func (b *Book) persistLocked(ctx context.Context) {
	data, err := json.Marshal(b.entries)
	if err != nil {
		log.Printf("Logbook: marshal failed: %v", err)
		return
	}
	if err := b.store.Save(ctx, storage.KeyLogs, data); err != nil {
		log.Printf("Logbook: persist failed: %v", err)
	}
}
