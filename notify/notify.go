package notify

import (
	"context"
	"log"
	"time"

	"shopmon/models"
)

// Notifier delivers one restock event to a sink.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, ev models.RestockEvent) error
}

const (
	queueSize      = 64
	deliverTimeout = 10 * time.Second
)

// Dispatcher fans restock events out to the configured sinks on a
// background goroutine. Publish never blocks the caller; when the
// queue is full the event is dropped with a warning.
type Dispatcher struct {
	sinks []Notifier
	ch    chan models.RestockEvent
	done  chan struct{}
}

func NewDispatcher(sinks ...Notifier) *Dispatcher {
	return &Dispatcher{
		sinks: sinks,
		ch:    make(chan models.RestockEvent, queueSize),
		done:  make(chan struct{}),
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	go d.loop(ctx)
}

func (d *Dispatcher) Publish(ev models.RestockEvent) {
	select {
	case d.ch <- ev:
	default:
		log.Printf("Notify: queue full, dropping restock event for %s / %s", ev.ProductName, ev.VariantLabel)
	}
}

// Done closes once the dispatch loop has exited.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer close(d.done)

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.ch:
			d.deliver(ctx, ev)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev models.RestockEvent) {
	for _, sink := range d.sinks {
		nctx, cancel := context.WithTimeout(ctx, deliverTimeout)
		if err := sink.Notify(nctx, ev); err != nil {
			log.Printf("Notify: %s failed for %s / %s: %v", sink.Name(), ev.ProductName, ev.VariantLabel, err)
		}
		cancel()
	}
}
