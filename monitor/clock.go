package monitor

import (
	"context"
	"time"
)

// Clock abstracts time for the watcher loops so tests can drive ticks
// themselves. Production code uses NewClock.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
	Sleep(ctx context.Context, d time.Duration)
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

func NewClock() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

func (realClock) Sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

type realTicker struct{ t *time.Ticker }

func (rt *realTicker) C() <-chan time.Time { return rt.t.C }
func (rt *realTicker) Stop()               { rt.t.Stop() }
