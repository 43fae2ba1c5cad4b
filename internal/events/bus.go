// Package events carries push notifications (pull progress, log lines) from the
// gateway to subscribers, and owns the subscription lifecycle.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/germanoeich/dockctl/internal/core"
)

// Type distinguishes payload events from the two terminal events.
type Type string

const (
	TypeData     Type = "data"
	TypeComplete Type = "complete"
	TypeError    Type = "error"
)

// Channel names.
const (
	ChannelPullProgress = "pull-progress"
	logsChannelPrefix   = "logs/"
)

// LogsChannel returns the channel a container's log lines are published on.
func LogsChannel(container string) string {
	return logsChannelPrefix + container
}

// Event is one message on a channel. Payload is opaque JSON; for TypeError it
// is a failurePayload.
type Event struct {
	Channel string          `json:"channel"`
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Terminal reports whether e ends its stream.
func (e Event) Terminal() bool {
	return e.Type == TypeComplete || e.Type == TypeError
}

// Data builds a payload event.
func Data(channel string, payload json.RawMessage) Event {
	return Event{Channel: channel, Type: TypeData, Payload: payload}
}

// Complete builds a successful terminal event.
func Complete(channel string) Event {
	return Event{Channel: channel, Type: TypeComplete}
}

type failurePayload struct {
	Kind    core.Kind `json:"kind,omitempty"`
	Message string    `json:"message"`
}

// Failure builds a failed terminal event carrying err's kind and message.
func Failure(channel string, err error) Event {
	p := failurePayload{Kind: core.KindOf(err), Message: err.Error()}
	var ce *core.Error
	if errors.As(err, &ce) && ce.Message != "" {
		p.Message = ce.Message
	}
	payload, _ := json.Marshal(p)
	return Event{Channel: channel, Type: TypeError, Payload: payload}
}

// FailureError decodes a TypeError payload back into a *core.Error. Payloads
// without a kind are BackendRejected: the stream's producer reported them.
func FailureError(channel string, payload json.RawMessage) *core.Error {
	var p failurePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.Message == "" {
		p.Message = "stream reported an error"
	}
	if p.Kind == "" {
		p.Kind = core.BackendRejected
	}
	return &core.Error{Kind: p.Kind, Op: channel, Message: p.Message}
}

// Stream is one open listener on a transport channel.
type Stream struct {
	C <-chan Event
	// Done is closed when the transport drops the stream (bus shutdown).
	Done <-chan struct{}
	// Close releases the listener. Safe to call more than once.
	Close func()
}

// Transport is the publish/subscribe channel the subscriber sits on.
type Transport interface {
	Open(channel string) (*Stream, error)
}

// ErrBusClosed is returned by Open and Publish after Close.
var ErrBusClosed = errors.New("event bus closed")

const listenerBuffer = 64

type listener struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func (l *listener) stop() {
	l.once.Do(func() { close(l.done) })
}

// Bus is an in-process Transport. Publish delivers to every listener of the
// channel in call order; a listener that is full applies backpressure to the
// publisher until it drains or is closed.
type Bus struct {
	mu        sync.Mutex
	listeners map[string]map[*listener]struct{}
	closed    bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[string]map[*listener]struct{})}
}

// Open registers a listener on channel.
func (b *Bus) Open(channel string) (*Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}

	l := &listener{ch: make(chan Event, listenerBuffer), done: make(chan struct{})}
	set, ok := b.listeners[channel]
	if !ok {
		set = make(map[*listener]struct{})
		b.listeners[channel] = set
	}
	set[l] = struct{}{}

	return &Stream{
		C:    l.ch,
		Done: l.done,
		Close: func() {
			b.remove(channel, l)
			l.stop()
		},
	}, nil
}

func (b *Bus) remove(channel string, l *listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.listeners[channel]; ok {
		delete(set, l)
		if len(set) == 0 {
			delete(b.listeners, channel)
		}
	}
}

// Publish sends e to every current listener of e.Channel.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	targets := make([]*listener, 0, len(b.listeners[e.Channel]))
	for l := range b.listeners[e.Channel] {
		targets = append(targets, l)
	}
	b.mu.Unlock()

	for _, l := range targets {
		select {
		case l.ch <- e:
		case <-l.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Listeners returns the number of open listeners on channel.
func (b *Bus) Listeners(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners[channel])
}

// Close drops every listener and rejects further use.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, set := range b.listeners {
		for l := range set {
			l.stop()
		}
	}
	b.listeners = nil
}
