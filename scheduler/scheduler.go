package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"shopmon/config"
	"shopmon/logbook"
	"shopmon/models"
	"shopmon/monitor"
	"shopmon/storage"
)

// Triggerable allows workers to be triggered manually
type Triggerable interface {
	Trigger()
}

// Rotator switches the outbound VPN location.
type Rotator interface {
	Rotate() error
}

type Scheduler struct {
	cfg     *config.Config
	monitor *monitor.Monitor
	store   *storage.SQLiteStore
	book    *logbook.Book
	vpn     Rotator
	cron    *cron.Cron
	ticker  *time.Ticker
	stopCh  chan struct{}

	enrichmentWorker Triggerable
}

func New(cfg *config.Config, mon *monitor.Monitor, store *storage.SQLiteStore, book *logbook.Book, vpn Rotator) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		monitor: mon,
		store:   store,
		book:    book,
		vpn:     vpn,
		cron:    cron.New(),
		stopCh:  make(chan struct{}),
	}
}

// SetWorkers registers background workers for manual triggering
func (s *Scheduler) SetWorkers(enrichment Triggerable) {
	s.enrichmentWorker = enrichment
}

func (s *Scheduler) Start(ctx context.Context) error {
	// Always poll the command queue
	go s.pollCommands(ctx)

	if s.cfg.Sweep.Cron != "" {
		log.Printf("Starting sweep with cron: %s", s.cfg.Sweep.Cron)
		_, err := s.cron.AddFunc(s.cfg.Sweep.Cron, func() {
			log.Println("Sweep: checking all tracked variants")
			s.monitor.InstantCheckAll(ctx)
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
	} else if s.cfg.Sweep.Interval > 0 {
		log.Printf("Starting sweep with interval: %s", s.cfg.Sweep.Interval)
		s.ticker = time.NewTicker(s.cfg.Sweep.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					log.Println("Sweep: checking all tracked variants")
					s.monitor.InstantCheckAll(ctx)
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	} else {
		log.Println("No sweep configured, per-variant watchers and commands only")
	}

	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
}

func (s *Scheduler) TriggerNow(ctx context.Context) {
	s.monitor.InstantCheckAll(ctx)
}

func (s *Scheduler) pollCommands(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cmds, err := s.store.GetPendingCommands()
			if err != nil {
				log.Printf("Error getting commands: %v", err)
				continue
			}

			for _, cmd := range cmds {
				log.Printf("Processing command: %s", cmd.Command)
				if err := s.handleCommand(ctx, &cmd); err != nil {
					log.Printf("Command error: %v", err)
				}
				if err := s.store.MarkCommandProcessed(cmd.ID); err != nil {
					log.Printf("Error marking command processed: %v", err)
				}
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) handleCommand(ctx context.Context, cmd *models.Command) error {
	params, err := s.store.ParseCommandParams(cmd)
	if err != nil {
		return fmt.Errorf("parse command params: %w", err)
	}

	switch cmd.Command {
	case models.CmdStartAll:
		s.monitor.StartAll(ctx)
		return nil
	case models.CmdStopAll:
		s.monitor.StopAll(ctx)
		return nil
	case models.CmdCheckNow:
		s.monitor.InstantCheckAll(ctx)
		return nil
	case models.CmdStartProduct:
		id, err := productID(params)
		if err != nil {
			return err
		}
		return s.monitor.StartProduct(ctx, id)
	case models.CmdStopProduct:
		id, err := productID(params)
		if err != nil {
			return err
		}
		return s.monitor.StopProduct(ctx, id)
	case models.CmdCheckProduct:
		id, err := productID(params)
		if err != nil {
			return err
		}
		return s.monitor.CheckProduct(ctx, id)
	case models.CmdStartVariant:
		key, err := variantKey(params)
		if err != nil {
			return err
		}
		return s.monitor.StartVariant(ctx, key)
	case models.CmdStopVariant:
		key, err := variantKey(params)
		if err != nil {
			return err
		}
		return s.monitor.StopVariant(ctx, key)
	case models.CmdCheckVariant:
		key, err := variantKey(params)
		if err != nil {
			return err
		}
		return s.monitor.InstantCheck(ctx, key)
	case models.CmdRemoveProduct:
		id, err := productID(params)
		if err != nil {
			return err
		}
		return s.monitor.RemoveProduct(ctx, id)
	case models.CmdUpdateSettings:
		id, err := productID(params)
		if err != nil {
			return err
		}
		return s.monitor.UpdateSettings(ctx, id, monitor.SettingsUpdate{
			IntervalSeconds: params.IntervalSeconds,
			MaxRetries:      params.MaxRetries,
			AutoStart:       params.AutoStart,
			CustomUserAgent: params.CustomUserAgent,
			Debug:           params.Debug,
		})
	case models.CmdClearLogs:
		if params.ProductID != "" {
			id, err := productID(params)
			if err != nil {
				return err
			}
			s.book.ClearProduct(ctx, id)
			return nil
		}
		s.book.Clear(ctx)
		return nil
	case models.CmdRotateVPN:
		if s.vpn == nil {
			log.Println("VPN rotation requested but no VPN configured")
			return nil
		}
		return s.vpn.Rotate()
	case models.CmdEnrich:
		if s.enrichmentWorker != nil {
			s.enrichmentWorker.Trigger()
			log.Println("Enrichment worker triggered via command")
		}
		return nil
	default:
		return fmt.Errorf("unknown command: %s", cmd.Command)
	}
}

func productID(params *models.CommandParams) (uuid.UUID, error) {
	if params.ProductID == "" {
		return uuid.Nil, fmt.Errorf("command requires product_id")
	}
	id, err := uuid.Parse(params.ProductID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("bad product_id %q: %w", params.ProductID, err)
	}
	return id, nil
}

func variantKey(params *models.CommandParams) (monitor.Key, error) {
	pid, err := productID(params)
	if err != nil {
		return monitor.Key{}, err
	}
	if params.VariantID == "" {
		return monitor.Key{}, fmt.Errorf("command requires variant_id")
	}
	vid, err := uuid.Parse(params.VariantID)
	if err != nil {
		return monitor.Key{}, fmt.Errorf("bad variant_id %q: %w", params.VariantID, err)
	}
	return monitor.Key{ProductID: pid, VariantID: vid}, nil
}
