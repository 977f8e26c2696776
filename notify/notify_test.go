package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"shopmon/models"
)

type recordingSink struct {
	mu     sync.Mutex
	events []models.RestockEvent
	block  chan struct{}
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Notify(ctx context.Context, ev models.RestockEvent) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestDispatcherDelivers(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink)

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	ev := models.RestockEvent{
		ProductID:    uuid.New(),
		ProductName:  "Figuren Set",
		VariantLabel: "Komplettset",
		Price:        "€59.99",
	}
	d.Publish(ev)

	deadline := time.After(2 * time.Second)
	for sink.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("event never delivered")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-d.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}

	if sink.events[0].VariantLabel != "Komplettset" {
		t.Fatalf("unexpected event %+v", sink.events[0])
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	d := NewDispatcher(sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < queueSize+10; i++ {
			d.Publish(models.RestockEvent{ProductName: "p"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a saturated queue")
	}
	close(sink.block)
}

func TestWebhookNotifierPostsJSON(t *testing.T) {
	var got models.RestockEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, srv.Client())
	ev := models.RestockEvent{
		ProductName:  "Figuren Set",
		VariantLabel: "Limited Edition",
		Price:        "€29.99",
		URL:          "https://shop.example/p?variant=3",
	}
	if err := n.Notify(context.Background(), ev); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got.VariantLabel != "Limited Edition" || got.Price != "€29.99" {
		t.Fatalf("webhook body mismatch: %+v", got)
	}
}

func TestWebhookNotifierErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, srv.Client())
	if err := n.Notify(context.Background(), models.RestockEvent{}); err == nil {
		t.Fatal("expected error for 403 response")
	}
}
