package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"shopmon/classifier"
	"shopmon/config"
	"shopmon/httputil"
	"shopmon/identity"
	"shopmon/logbook"
	"shopmon/logging"
	"shopmon/monitor"
	"shopmon/notify"
	"shopmon/scheduler"
	"shopmon/scraper"
	"shopmon/storage"
	"shopmon/vpn"
	"shopmon/workers"
)

var (
	checkNow = flag.Bool("check", false, "Check every tracked variant once and exit")
	addURL   = flag.String("add", "", "Add a product page by URL and exit")
	interval = flag.Int("interval", 0, "Check interval in seconds for -add (0 = default)")
	retries  = flag.Int("retries", 0, "Consecutive error budget for -add (0 = default)")
	startNow = flag.Bool("start", false, "Start monitoring right after -add")
	variants = flag.String("variants", "", "Comma-separated variant labels to track for -add (empty = all discovered)")
	removeID = flag.String("remove", "", "Remove a tracked product by id and exit")
	list     = flag.Bool("list", false, "List tracked products and exit")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logFile, err := logging.Setup(cfg.LogPath)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting shopmon...")

	clients := httputil.NewClients(&cfg.Proxy)
	if cfg.Proxy.URL != "" {
		log.Printf("Proxy: %s", cfg.Proxy.URL)
	}

	// Egress posture first, before any storefront traffic.
	vpnCtl := vpn.NewExpressVPN(cfg.ExpressVPN)
	if cfg.ExpressVPN.AutoConnect {
		if !vpnCtl.Available() {
			log.Println("Warning: expressvpnctl not found, continuing without VPN")
		} else if err := vpnCtl.EnsureConnected(); err != nil {
			log.Printf("Warning: VPN connect failed: %v", err)
		} else {
			log.Println("VPN connected")
		}
	}

	ctx := context.Background()

	blobStore, err := storage.Open(ctx, &cfg.Store)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.Store.Backend, err)
	}
	defer blobStore.Close()
	log.Printf("Blob store: %s", cfg.Store.Backend)
	if cfg.Store.Backend == "postgres" {
		log.Printf("Connected to Postgres: %s", maskConnectionString(cfg.Store.PGURL))
	}

	// The command queue always lives in SQLite, whatever holds the blobs.
	sqliteStore, ok := blobStore.(*storage.SQLiteStore)
	if !ok {
		sqliteStore, err = storage.NewSQLiteStore(cfg.Store.DBPath)
		if err != nil {
			log.Fatalf("Failed to open command queue: %v", err)
		}
		defer sqliteStore.Close()
	}
	log.Printf("Command queue: %s", cfg.Store.DBPath)

	book := logbook.New(blobStore)
	if err := book.Load(ctx); err != nil {
		log.Fatalf("Failed to load logbook: %v", err)
	}

	idBuilder := identity.NewBuilder(&cfg.Identity)
	fetcher := scraper.NewDirectFetcher(idBuilder, clients.Scraping)
	checker := scraper.New(cfg.Delegate, fetcher, classifier.New(), clients.API)
	if cfg.Delegate.BaseURL != "" {
		log.Printf("Delegate: %s (direct fetch as fallback)", cfg.Delegate.BaseURL)
	} else {
		log.Println("Delegate: none, direct fetch only")
	}

	sinks := []notify.Notifier{notify.LogNotifier{}}
	if cfg.Notify.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookNotifier(cfg.Notify.WebhookURL, clients.API))
		log.Printf("Webhook notifications: %s", cfg.Notify.WebhookURL)
	}
	dispatcher := notify.NewDispatcher(sinks...)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	dispatcher.Start(ctx)

	mon := monitor.New(cfg, blobStore, checker, fetcher, book, dispatcher, monitor.NewClock())

	// One-shot commands load state but never resume watchers.
	if *addURL != "" || *removeID != "" || *list || *checkNow {
		if err := mon.Load(ctx); err != nil {
			log.Fatalf("Failed to load products: %v", err)
		}
		runOneShot(ctx, mon, cancel, dispatcher)
		return
	}

	// Daemon mode
	if err := mon.Restore(ctx); err != nil {
		log.Fatalf("Failed to restore state: %v", err)
	}

	var rotator scheduler.Rotator
	if vpnCtl.Available() {
		rotator = vpnCtl
	}

	sched := scheduler.New(cfg, mon, sqliteStore, book, rotator)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	enrichmentWorker := workers.NewEnrichmentWorker(mon, fetcher)
	sched.SetWorkers(enrichmentWorker)
	go enrichmentWorker.Run(ctx, 10, 5*time.Minute) // batch of 10 every 5 min
	log.Println("Enrichment worker started")

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	sched.Stop()
	mon.Shutdown(10 * time.Second)
	cancel()
	select {
	case <-dispatcher.Done():
	case <-time.After(2 * time.Second):
	}
	log.Println("Goodbye!")
}

func runOneShot(ctx context.Context, mon *monitor.Monitor, cancel context.CancelFunc, dispatcher *notify.Dispatcher) {
	switch {
	case *addURL != "":
		opts := monitor.AddOptions{
			IntervalSeconds: *interval,
			MaxRetries:      *retries,
			AutoStart:       *startNow,
		}
		if *variants != "" {
			for _, label := range strings.Split(*variants, ",") {
				if label = strings.TrimSpace(label); label != "" {
					opts.Variants = append(opts.Variants, label)
				}
			}
		}
		p, err := mon.AddProduct(ctx, *addURL, opts)
		if errors.Is(err, monitor.ErrProductExists) {
			log.Fatalf("Already tracking %s (%s)", p.Name, p.ID)
		}
		if err != nil {
			log.Fatalf("Add failed: %v", err)
		}
		fmt.Printf("Added %s (%s)\n", p.Name, p.ID)
		fmt.Printf("  interval %ds, retries %d, monitoring %v\n", p.IntervalSeconds, p.MaxRetries, p.IsMonitoring)
		for _, v := range p.Variants {
			fmt.Printf("  - %s  %s\n", v.Label, v.URL)
		}
		mon.Shutdown(5 * time.Second)

	case *removeID != "":
		id, err := uuid.Parse(*removeID)
		if err != nil {
			log.Fatalf("Bad product id %q: %v", *removeID, err)
		}
		p, err := mon.Product(id)
		if err != nil {
			log.Fatalf("Remove failed: %v", err)
		}
		if err := mon.RemoveProduct(ctx, id); err != nil {
			log.Fatalf("Remove failed: %v", err)
		}
		fmt.Printf("Removed %s (%s)\n", p.Name, id)

	case *list:
		products := mon.Products()
		if len(products) == 0 {
			fmt.Println("No tracked products.")
			return
		}
		for _, p := range products {
			fmt.Printf("%s  %s (%s)\n", p.ID, p.Name, p.Site)
			fmt.Printf("  %s\n", p.URL)
			fmt.Printf("  interval %ds, retries %d, checks %d, errors %d\n",
				p.IntervalSeconds, p.MaxRetries, p.Checks, p.Errors)
			for _, v := range p.Variants {
				state := "unavailable"
				if v.IsAvailable {
					state = "available"
				}
				marker := " "
				if v.IsMonitoring {
					marker = "*"
				}
				price := v.Price
				if price == "" {
					price = "-"
				}
				fmt.Printf("  %s %-12s %-11s %s\n", marker, v.Label, state, price)
			}
		}

	case *checkNow:
		products := mon.Products()
		if len(products) == 0 {
			fmt.Println("No tracked products.")
			return
		}
		log.Printf("Checking %d product(s)...", len(products))
		for _, p := range products {
			if err := mon.CheckProduct(ctx, p.ID); err != nil {
				log.Printf("Check %s: %v", p.Name, err)
			}
		}
		for _, p := range mon.Products() {
			for _, v := range p.Variants {
				state := "unavailable"
				if v.IsAvailable {
					state = "available"
				}
				fmt.Printf("%-40s %-12s %s\n", p.Name, v.Label, state)
			}
		}
		cancel()
		select {
		case <-dispatcher.Done():
		case <-time.After(2 * time.Second):
		}
	}
}

// maskConnectionString masks password in connection string for logging
func maskConnectionString(connStr string) string {
	start := 0
	for i := 0; i < len(connStr)-3; i++ {
		if connStr[i:i+3] == "://" {
			start = i + 3
			break
		}
	}
	if start == 0 {
		return connStr
	}

	colonIdx := -1
	atIdx := -1
	for i := start; i < len(connStr); i++ {
		if connStr[i] == ':' && colonIdx == -1 {
			colonIdx = i
		}
		if connStr[i] == '@' {
			atIdx = i
			break
		}
	}

	if colonIdx > 0 && atIdx > colonIdx {
		return connStr[:colonIdx+1] + "****" + connStr[atIdx:]
	}
	return connStr
}
