package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"shopmon/classifier"
	"shopmon/config"
	"shopmon/logbook"
	"shopmon/models"
	"shopmon/monitor"
	"shopmon/scraper"
	"shopmon/storage"
)

type okChecker struct{}

func (okChecker) Check(ctx context.Context, target scraper.Target) (*scraper.Outcome, error) {
	return &scraper.Outcome{
		Verdict:    classifier.Verdict{Availability: classifier.Available, Rule: "available-marker"},
		StatusCode: 200,
		Via:        "direct",
	}, nil
}

type pageFetcher struct{}

func (pageFetcher) Fetch(ctx context.Context, pageURL string) (*scraper.Result, error) {
	body := `<html><body><h1>Sammelfigur Gold</h1><button>In den Warenkorb</button></body></html>`
	return &scraper.Result{StatusCode: 200, Body: []byte(body), FinalURL: pageURL}, nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(ev models.RestockEvent) {}

type countingWorker struct{ triggers int }

func (w *countingWorker) Trigger() { w.triggers++ }

func newTestScheduler(t *testing.T) (*Scheduler, *monitor.Monitor, *storage.SQLiteStore) {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{Defaults: config.DefaultsConfig{IntervalSeconds: 300, MaxRetries: 5}}
	book := logbook.New(store)
	mon := monitor.New(cfg, store, okChecker{}, pageFetcher{}, book, nopPublisher{}, monitor.NewClock())
	t.Cleanup(func() { mon.Shutdown(2 * time.Second) })

	return New(cfg, mon, store, book, nil), mon, store
}

func drainQueue(t *testing.T, s *Scheduler) {
	t.Helper()
	cmds, err := s.store.GetPendingCommands()
	if err != nil {
		t.Fatalf("pending commands: %v", err)
	}
	for _, cmd := range cmds {
		if err := s.handleCommand(context.Background(), &cmd); err != nil {
			t.Fatalf("handle %s: %v", cmd.Command, err)
		}
		if err := s.store.MarkCommandProcessed(cmd.ID); err != nil {
			t.Fatalf("mark processed: %v", err)
		}
	}
}

func TestProductCommands(t *testing.T) {
	s, mon, store := newTestScheduler(t)
	ctx := context.Background()

	p, err := mon.AddProduct(ctx, "https://shop.example/sammelfigur-gold", monitor.AddOptions{})
	if err != nil {
		t.Fatalf("add product: %v", err)
	}
	if mon.WatcherCount() != 0 {
		t.Fatal("product should start stopped")
	}

	params := &models.CommandParams{ProductID: p.ID.String()}
	if err := store.EnqueueCommand(models.CmdStartProduct, params); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	drainQueue(t, s)
	if mon.WatcherCount() != 1 {
		t.Fatalf("expected start_product to arm 1 watcher, got %d", mon.WatcherCount())
	}

	if err := store.EnqueueCommand(models.CmdStopProduct, params); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	drainQueue(t, s)
	if mon.WatcherCount() != 0 {
		t.Fatalf("expected stop_product to clear watchers, got %d", mon.WatcherCount())
	}

	remaining, err := store.GetPendingCommands()
	if err != nil {
		t.Fatalf("pending commands: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected drained queue, got %d pending", len(remaining))
	}
}

func TestCheckVariantCommand(t *testing.T) {
	s, mon, store := newTestScheduler(t)
	ctx := context.Background()

	p, err := mon.AddProduct(ctx, "https://shop.example/sammelfigur-gold", monitor.AddOptions{})
	if err != nil {
		t.Fatalf("add product: %v", err)
	}

	params := &models.CommandParams{
		ProductID: p.ID.String(),
		VariantID: p.Variants[0].ID.String(),
	}
	if err := store.EnqueueCommand(models.CmdCheckVariant, params); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	drainQueue(t, s)

	got, err := mon.Product(p.ID)
	if err != nil {
		t.Fatalf("product: %v", err)
	}
	if got.Variants[0].Checks != 1 {
		t.Fatalf("expected one applied check, got %d", got.Variants[0].Checks)
	}
	if mon.WatcherCount() != 0 {
		t.Fatal("check_variant must not arm a watcher")
	}
}

func TestUpdateSettingsCommand(t *testing.T) {
	s, mon, store := newTestScheduler(t)
	ctx := context.Background()

	p, err := mon.AddProduct(ctx, "https://shop.example/sammelfigur-gold", monitor.AddOptions{})
	if err != nil {
		t.Fatalf("add product: %v", err)
	}

	debug := true
	params := &models.CommandParams{
		ProductID:       p.ID.String(),
		IntervalSeconds: 120,
		Debug:           &debug,
	}
	if err := store.EnqueueCommand(models.CmdUpdateSettings, params); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	drainQueue(t, s)

	got, err := mon.Product(p.ID)
	if err != nil {
		t.Fatalf("product: %v", err)
	}
	if got.IntervalSeconds != 120 || !got.Debug {
		t.Fatalf("settings not applied: interval=%d debug=%v", got.IntervalSeconds, got.Debug)
	}
	if got.MaxRetries != p.MaxRetries {
		t.Fatalf("untouched retries changed: %d", got.MaxRetries)
	}
}

func TestRemoveProductCommand(t *testing.T) {
	s, mon, store := newTestScheduler(t)
	ctx := context.Background()

	p, err := mon.AddProduct(ctx, "https://shop.example/sammelfigur-gold", monitor.AddOptions{AutoStart: true})
	if err != nil {
		t.Fatalf("add product: %v", err)
	}
	if mon.WatcherCount() != 1 {
		t.Fatal("auto-start should have armed the watcher")
	}

	if err := store.EnqueueCommand(models.CmdRemoveProduct, &models.CommandParams{ProductID: p.ID.String()}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	drainQueue(t, s)

	if len(mon.Products()) != 0 {
		t.Fatal("expected the product removed")
	}
	if mon.WatcherCount() != 0 {
		t.Fatalf("expected its watcher stopped, got %d", mon.WatcherCount())
	}
}

func TestVariantCommandsRequireIDs(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	ctx := context.Background()

	cmd := &models.Command{Command: models.CmdStartVariant}
	if err := s.handleCommand(ctx, cmd); err == nil {
		t.Fatal("start_variant without params must fail")
	}

	cmd = &models.Command{Command: models.CmdStartVariant, Params: []byte(`{"product_id":"not-a-uuid","variant_id":"also-not"}`)}
	if err := s.handleCommand(ctx, cmd); err == nil {
		t.Fatal("start_variant with bad UUIDs must fail")
	}
}

func TestEnrichCommandTriggersWorker(t *testing.T) {
	s, _, store := newTestScheduler(t)
	worker := &countingWorker{}
	s.SetWorkers(worker)

	if err := store.EnqueueCommand(models.CmdEnrich, nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	drainQueue(t, s)

	if worker.triggers != 1 {
		t.Fatalf("expected 1 trigger, got %d", worker.triggers)
	}
}

func TestUnknownCommandErrors(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	cmd := &models.Command{Command: "reboot_universe"}
	if err := s.handleCommand(context.Background(), cmd); err == nil {
		t.Fatal("unknown command must surface an error")
	}
}

func TestClearLogsCommand(t *testing.T) {
	s, mon, store := newTestScheduler(t)
	ctx := context.Background()

	if _, err := mon.AddProduct(ctx, "https://shop.example/sammelfigur-gold", monitor.AddOptions{}); err != nil {
		t.Fatalf("add product: %v", err)
	}
	if s.book.Len() == 0 {
		t.Fatal("expected add to write a log entry")
	}

	if err := store.EnqueueCommand(models.CmdClearLogs, nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	drainQueue(t, s)

	if s.book.Len() != 0 {
		t.Fatalf("expected empty logbook, got %d entries", s.book.Len())
	}
}

func TestClearLogsForSingleProduct(t *testing.T) {
	s, mon, store := newTestScheduler(t)
	ctx := context.Background()

	gold, err := mon.AddProduct(ctx, "https://shop.example/sammelfigur-gold", monitor.AddOptions{})
	if err != nil {
		t.Fatalf("add product: %v", err)
	}
	silber, err := mon.AddProduct(ctx, "https://shop.example/sammelfigur-silber", monitor.AddOptions{})
	if err != nil {
		t.Fatalf("add product: %v", err)
	}

	if err := store.EnqueueCommand(models.CmdClearLogs, &models.CommandParams{ProductID: gold.ID.String()}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	drainQueue(t, s)

	for _, e := range s.book.Snapshot() {
		if e.ProductID == gold.ID {
			t.Fatalf("expected gold entries cleared, found %q", e.Message)
		}
	}
	var kept int
	for _, e := range s.book.Snapshot() {
		if e.ProductID == silber.ID {
			kept++
		}
	}
	if kept == 0 {
		t.Fatal("expected the other product's entries to survive")
	}
}
