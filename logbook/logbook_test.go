package logbook

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"

	"shopmon/models"
	"shopmon/storage"
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
	blob, ok := m.blobs[key]
	if !ok {
		return nil, nil
	}
	return blob, nil
}

func (m *memStore) Close() error { return nil }

func TestAppendNewestFirst(t *testing.T) {
	book := New(newMemStore())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		book.Append(ctx, models.LogEntry{Message: fmt.Sprintf("entry %d", i)})
	}

	snap := book.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(snap))
	}
	if snap[0].Message != "entry 2" {
		t.Fatalf("expected newest first, got %q", snap[0].Message)
	}
	if snap[2].Message != "entry 0" {
		t.Fatalf("expected oldest last, got %q", snap[2].Message)
	}
	if snap[0].Time.IsZero() {
		t.Fatal("expected Append to stamp the time")
	}
}

func TestRingCap(t *testing.T) {
	book := New(newMemStore())
	ctx := context.Background()

	for i := 0; i < ringCap+20; i++ {
		book.Append(ctx, models.LogEntry{Message: fmt.Sprintf("entry %d", i)})
	}

	if book.Len() != ringCap {
		t.Fatalf("expected ring capped at %d, got %d", ringCap, book.Len())
	}
	snap := book.Snapshot()
	if snap[0].Message != fmt.Sprintf("entry %d", ringCap+19) {
		t.Fatalf("newest entry missing, head is %q", snap[0].Message)
	}
	if snap[len(snap)-1].Message != "entry 20" {
		t.Fatalf("expected the oldest 20 entries dropped, tail is %q", snap[len(snap)-1].Message)
	}
}

func TestPersistAndReload(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	book := New(store)
	book.Append(ctx, models.LogEntry{Status: models.LogSuccess, Message: "checked"})
	book.Append(ctx, models.LogEntry{Status: models.LogAntiBot, Message: "blocked"})

	reloaded := New(store)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	snap := reloaded.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 entries after reload, got %d", len(snap))
	}
	if snap[0].Status != models.LogAntiBot {
		t.Fatalf("expected newest entry first after reload, got %s", snap[0].Status)
	}
}

func TestClearProduct(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	keep := uuid.New()
	drop := uuid.New()

	book := New(store)
	book.Append(ctx, models.LogEntry{ProductID: keep, Message: "keep 1"})
	book.Append(ctx, models.LogEntry{ProductID: drop, Message: "drop 1"})
	book.Append(ctx, models.LogEntry{ProductID: keep, Message: "keep 2"})
	book.Append(ctx, models.LogEntry{ProductID: drop, Message: "drop 2"})

	book.ClearProduct(ctx, drop)

	snap := book.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 entries left, got %d", len(snap))
	}
	for _, e := range snap {
		if e.ProductID != keep {
			t.Fatalf("entry for cleared product survived: %q", e.Message)
		}
	}

	reloaded := New(store)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if reloaded.Len() != 2 {
		t.Fatalf("clear not persisted, got %d entries", reloaded.Len())
	}
}

func TestClear(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	book := New(store)
	book.Append(ctx, models.LogEntry{Message: "one"})
	book.Clear(ctx)

	if book.Len() != 0 {
		t.Fatalf("expected empty book, got %d", book.Len())
	}
	blob, _ := store.Load(ctx, storage.KeyLogs)
	if string(blob) != "null" && string(blob) != "[]" {
		t.Fatalf("expected cleared blob persisted, got %s", blob)
	}
}

func TestCorruptBlobStartsEmpty(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	store.Save(ctx, storage.KeyLogs, []byte("{not json"))

	book := New(store)
	if err := book.Load(ctx); err != nil {
		t.Fatalf("corrupt blob should not error, got %v", err)
	}
	if book.Len() != 0 {
		t.Fatalf("expected empty book from corrupt blob, got %d", book.Len())
	}
}
