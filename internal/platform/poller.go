package platform

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/thermhint/internal/errors"
	"github.com/jonboulle/clockwork"
)

// StatusPoller emulates a platform push callback for backends that can only
// be sampled. It invokes the callback from its own goroutine whenever the
// sampled status differs from the previous sample.
type StatusPoller struct {
	clock    clockwork.Clock
	interval time.Duration
	read     func() (ThermalStatus, error)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewStatusPoller(clock clockwork.Clock, interval time.Duration, read func() (ThermalStatus, error)) *StatusPoller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &StatusPoller{clock: clock, interval: interval, read: read}
}

// Start begins polling. Only one callback may be registered at a time.
func (p *StatusPoller) Start(fn func(ThermalStatus)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return errors.New().WithData(errors.ErrInvalidArgument, "status listener already registered")
	}
	if p.interval <= 0 {
		return errors.New().New(errors.ErrInvalidInterval)
	}

	last, err := p.read()
	if err != nil {
		last = StatusError
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	// Ticker is created before returning so a fake clock sees the waiter.
	ticker := p.clock.NewTicker(p.interval)
	go p.loop(ctx, ticker, last, fn, p.done)

	return nil
}

func (p *StatusPoller) loop(ctx context.Context, ticker clockwork.Ticker, last ThermalStatus, fn func(ThermalStatus), done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			status, err := p.read()
			if err != nil {
				continue
			}
			if status != last {
				last = status
				fn(status)
			}
		}
	}
}

// Stop ends polling and waits for the goroutine to exit. Stopping an idle
// poller is a no-op.
func (p *StatusPoller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Active reports whether a callback is registered.
func (p *StatusPoller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}
