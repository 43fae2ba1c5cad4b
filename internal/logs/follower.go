// Package logs follows container log streams into bounded per-container rings.
package logs

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/germanoeich/dockctl/internal/core"
	"github.com/germanoeich/dockctl/internal/events"
	"github.com/germanoeich/dockctl/internal/observability"
)

// Emitter dispatches the emit_logs command.
type Emitter interface {
	EmitLogs(ctx context.Context, containerName string) error
}

// Follower keeps one ring of sanitized lines per container and at most one
// active stream per container.
type Follower struct {
	emitter  Emitter
	sub      *events.Subscriber
	capacity int
	log      *slog.Logger

	mu     sync.Mutex
	rings  map[string]*core.Ring
	active map[string]context.CancelFunc
	// ended holds containers whose log reached EOF; they are not followed
	// again until seen running after a stop.
	ended map[string]bool
	state map[string]core.ContainerState
	wg    sync.WaitGroup
}

// NewFollower creates a Follower whose rings hold capacity lines each.
func NewFollower(emitter Emitter, sub *events.Subscriber, capacity int, log *slog.Logger) *Follower {
	return &Follower{
		emitter:  emitter,
		sub:      sub,
		capacity: capacity,
		log:      observability.OrDefault(log),
		rings:    make(map[string]*core.Ring),
		active:   make(map[string]context.CancelFunc),
		ended:    make(map[string]bool),
		state:    make(map[string]core.ContainerState),
	}
}

// Ring returns the ring for name, creating it if needed.
func (f *Follower) Ring(name string) *core.Ring {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ringLocked(name)
}

func (f *Follower) ringLocked(name string) *core.Ring {
	r, ok := f.rings[name]
	if !ok {
		r = core.NewRing(f.capacity)
		f.rings[name] = r
	}
	return r
}

// Follow streams the container's log into its ring and blocks until the log
// ends, the stream fails or ctx is done. The subscription is closed on every
// return path.
func (f *Follower) Follow(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return core.Errorf(core.ValidationFailed, "emit_logs", "container name is required")
	}
	ring := f.Ring(name)
	var resumeAfter time.Time
	if last, ok := ring.Last(); ok {
		resumeAfter = last.Time
	}

	sub, err := f.sub.Subscribe(ctx, events.LogsChannel(name), func(ev events.Event) {
		if ev.Type != events.TypeData {
			return
		}
		var raw string
		if err := json.Unmarshal(ev.Payload, &raw); err != nil {
			f.log.Warn("skipping malformed log event", "container", name, "err", err)
			return
		}
		ts, text, stamped := splitTimestamp(raw)
		// a resumed stream replays the whole log
		if stamped && !resumeAfter.IsZero() && !ts.After(resumeAfter) {
			return
		}
		text = core.SanitizeLine(text)
		ring.Append(core.LogLine{Time: ts, Container: name, Text: text, Level: core.DetectSeverity(text)})
	})
	if err != nil {
		return err
	}
	defer sub.Close()

	f.log.Debug("following logs", "container", name, "subscription", sub.ID)
	cmdErr := f.emitter.EmitLogs(ctx, name)
	if core.KindOf(cmdErr) != core.ValidationFailed {
		select {
		case <-sub.Done():
		case <-ctx.Done():
		}
	}

	switch {
	case cmdErr != nil:
		if ctx.Err() != nil {
			return nil
		}
		return cmdErr
	case sub.Err() != nil:
		return sub.Err()
	}
	return nil
}

// Start follows name in the background unless it is already being followed.
// It reports whether a new stream was started.
func (f *Follower) Start(ctx context.Context, name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.active[name]; ok || f.ended[name] {
		return false
	}
	streamCtx, cancel := context.WithCancel(ctx)
	f.active[name] = cancel
	f.ringLocked(name)

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer func() {
			f.mu.Lock()
			delete(f.active, name)
			f.mu.Unlock()
			cancel()
		}()
		err := f.Follow(streamCtx, name)
		switch {
		case err != nil:
			f.log.Warn("log stream ended with error", "container", name, "err", err)
		case streamCtx.Err() == nil:
			f.mu.Lock()
			if _, ok := f.rings[name]; ok {
				f.ended[name] = true
			}
			f.mu.Unlock()
			f.log.Debug("log stream ended", "container", name)
		}
	}()
	return true
}

// Following reports whether name has an active background stream.
func (f *Follower) Following(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.active[name]
	return ok
}

// Lines returns the buffered lines of name with a sequence number above since.
func (f *Follower) Lines(name string, since uint64) []core.LogLine {
	f.mu.Lock()
	r, ok := f.rings[name]
	f.mu.Unlock()
	if !ok {
		return nil
	}
	return r.Since(since)
}

// Forget stops following name and drops its ring.
func (f *Follower) Forget(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cancel, ok := f.active[name]; ok {
		cancel()
	}
	delete(f.rings, name)
	delete(f.ended, name)
	delete(f.state, name)
}

// Observe takes a container snapshot. A container seen running after a stop
// may be followed again, and containers that disappeared are forgotten.
func (f *Follower) Observe(snapshot []core.ContainerSummary) {
	seen := make(map[string]bool, len(snapshot))
	var gone []string

	f.mu.Lock()
	for _, c := range snapshot {
		name := c.Key()
		if name == "" {
			continue
		}
		seen[name] = true
		if prev, ok := f.state[name]; ok && prev != core.StateRunning && c.State == core.StateRunning {
			delete(f.ended, name)
		}
		f.state[name] = c.State
	}
	for name := range f.rings {
		if !seen[name] {
			gone = append(gone, name)
		}
	}
	f.mu.Unlock()

	for _, name := range gone {
		f.Forget(name)
	}
}

// Stop cancels every background stream and waits for them to exit.
func (f *Follower) Stop() {
	f.mu.Lock()
	for _, cancel := range f.active {
		cancel()
	}
	f.mu.Unlock()
	f.wg.Wait()
}

// splitTimestamp separates the runtime's "2006-01-02T15:04:05.000000000Z msg"
// prefix. Lines without one are stamped with the current time and stamped is
// false.
func splitTimestamp(line string) (ts time.Time, msg string, stamped bool) {
	if len(line) > 30 && line[29] == 'Z' && line[30] == ' ' {
		if t, err := time.Parse(time.RFC3339Nano, line[:30]); err == nil {
			return t, line[31:], true
		}
	}
	return time.Now(), line, false
}
