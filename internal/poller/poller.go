// Package poller drives periodic full refreshes of a resource collection.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/germanoeich/dockctl/internal/observability"
)

// Config wires a Poller to its fetch function and delivery sinks.
type Config[T any] struct {
	// Resource labels log lines and metrics ("containers", "images", ...).
	Resource string
	// Fetch returns the full collection.
	Fetch func(ctx context.Context) ([]T, error)
	// OnSnapshot receives every applied snapshot, in issue order. It must not
	// call back into the Poller.
	OnSnapshot func([]T)
	// OnError receives every failed fetch of the current generation.
	OnError func(error)
	Logger  *slog.Logger
}

// Poller fetches a collection once on Start and then once per interval until
// Stop. At most one timer-driven fetch is in flight; a tick that fires while
// one is running is skipped.
//
// Every fetch, timer or manual, takes an increasing issue number. A result is
// applied only if it belongs to the current generation and its number is
// higher than the last applied one, so the newest-issued fetch wins no matter
// which completes first. Stop starts a new generation, which discards
// whatever is still in flight.
type Poller[T any] struct {
	cfg Config[T]
	log *slog.Logger

	mu       sync.Mutex
	running  bool
	gen      uint64
	issued   uint64
	applied  uint64
	inFlight bool
	interval time.Duration
	latest   []T
	cancel   context.CancelFunc
	reset    chan time.Duration
	loopDone chan struct{}

	deliverMu sync.Mutex
}

// New creates a stopped Poller.
func New[T any](cfg Config[T]) *Poller[T] {
	return &Poller[T]{
		cfg:   cfg,
		log:   observability.OrDefault(cfg.Logger).With("resource", cfg.Resource),
		reset: make(chan time.Duration, 1),
	}
}

// Start issues one fetch immediately and then one per interval. Fetches run
// with ctx; cancelling ctx stops the timer like Stop does. Start on a running
// Poller is a no-op.
func (p *Poller[T]) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.gen++
	p.inFlight = false
	p.interval = interval
	select {
	case <-p.reset:
	default:
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.loopDone = make(chan struct{})
	p.log.Debug("poller started", "interval", interval)
	go p.loop(loopCtx, ctx, p.gen, interval, p.loopDone)
}

func (p *Poller[T]) loop(loopCtx, fetchCtx context.Context, gen uint64, interval time.Duration, done chan struct{}) {
	defer close(done)

	p.tick(fetchCtx, gen)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-loopCtx.Done():
			p.expire(gen)
			return
		case d := <-p.reset:
			ticker.Reset(d)
		case <-ticker.C:
			p.tick(fetchCtx, gen)
		}
	}
}

// expire marks the Poller stopped when its loop ended because the Start
// context was cancelled. After Stop the generation has already moved on.
func (p *Poller[T]) expire(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running || gen != p.gen {
		return
	}
	p.running = false
	p.gen++
	p.cancel()
	p.cancel = nil
	p.log.Debug("poller stopped, context done")
}

func (p *Poller[T]) tick(ctx context.Context, gen uint64) {
	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	if p.inFlight {
		p.mu.Unlock()
		observability.RecordPoll(p.cfg.Resource, observability.PollSkipped)
		p.log.Debug("tick skipped, fetch in flight")
		return
	}
	p.inFlight = true
	p.issued++
	n := p.issued
	p.mu.Unlock()

	go func() {
		items, err := p.cfg.Fetch(ctx)
		p.deliver(gen, n, items, err, true)
	}()
}

// RefreshNow issues a fetch outside the timer and blocks until its result has
// been applied or discarded. It returns the fetch error, if any. It works on a
// stopped Poller too.
func (p *Poller[T]) RefreshNow(ctx context.Context) error {
	p.mu.Lock()
	gen := p.gen
	p.issued++
	n := p.issued
	p.mu.Unlock()

	items, err := p.cfg.Fetch(ctx)
	p.deliver(gen, n, items, err, false)
	return err
}

func (p *Poller[T]) deliver(gen, n uint64, items []T, err error, timer bool) {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()

	p.mu.Lock()
	if timer && gen == p.gen {
		p.inFlight = false
	}
	if gen != p.gen {
		p.mu.Unlock()
		observability.RecordPoll(p.cfg.Resource, observability.PollStale)
		p.log.Debug("discarding result from stopped generation", "issue", n)
		return
	}
	if err != nil {
		p.mu.Unlock()
		observability.RecordPoll(p.cfg.Resource, observability.PollError)
		p.log.Warn("poll failed", "issue", n, "err", err)
		if p.cfg.OnError != nil {
			p.cfg.OnError(err)
		}
		return
	}
	if applied := p.applied; n <= applied {
		p.mu.Unlock()
		observability.RecordPoll(p.cfg.Resource, observability.PollStale)
		p.log.Debug("discarding superseded result", "issue", n, "applied", applied)
		return
	}
	p.applied = n
	p.latest = items
	p.mu.Unlock()

	observability.RecordPoll(p.cfg.Resource, observability.PollOK)
	if p.cfg.OnSnapshot != nil {
		p.cfg.OnSnapshot(items)
	}
}

// Stop cancels the timer and discards any fetch still in flight. It returns
// once the timer goroutine has exited. Stop on a stopped Poller is a no-op.
func (p *Poller[T]) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.gen++
	cancel, done := p.cancel, p.loopDone
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	<-done
	p.log.Debug("poller stopped")
}

// Running reports whether the timer is active.
func (p *Poller[T]) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Latest returns the last applied snapshot and whether there is one.
func (p *Poller[T]) Latest() ([]T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest, p.applied > 0
}

// Interval returns the current tick interval.
func (p *Poller[T]) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// SetInterval changes the tick interval, taking effect on a running Poller
// from the next tick.
func (p *Poller[T]) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interval = d
	if !p.running {
		return
	}
	select {
	case <-p.reset:
	default:
	}
	p.reset <- d
}
