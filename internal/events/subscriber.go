package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/germanoeich/dockctl/internal/core"
	"github.com/germanoeich/dockctl/internal/observability"
)

// Subscriber opens subscriptions on a Transport.
type Subscriber struct {
	transport Transport
	log       *slog.Logger
}

// NewSubscriber creates a Subscriber. A nil logger uses slog.Default().
func NewSubscriber(t Transport, log *slog.Logger) *Subscriber {
	return &Subscriber{transport: t, log: observability.OrDefault(log)}
}

// Subscription is the handle for one open channel subscription. It is torn
// down exactly once: by Close, by a terminal event, by cancellation of the
// context passed to Subscribe, or by the transport dropping the stream,
// whichever happens first.
type Subscription struct {
	ID      string
	Channel string

	stream  *Stream
	log     *slog.Logger
	once    sync.Once
	closing chan struct{}
	done    chan struct{}

	mu  sync.Mutex
	err error
}

// Subscribe opens channel and calls onEvent for each event, in transport order,
// on a dedicated goroutine. Terminal events are delivered to onEvent before the
// subscription closes itself. If the transport cannot open the channel the
// returned error is a TransportFailure and there is nothing to close.
func (s *Subscriber) Subscribe(ctx context.Context, channel string, onEvent func(Event)) (*Subscription, error) {
	stream, err := s.transport.Open(channel)
	if err != nil {
		return nil, core.Wrap(core.TransportFailure, "subscribe "+channel, err)
	}

	sub := &Subscription{
		ID:      uuid.NewString(),
		Channel: channel,
		stream:  stream,
		log:     s.log,
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	observability.SubscriptionOpened()
	s.log.Debug("subscription opened", "subscription", sub.ID, "channel", channel)

	go sub.deliver(ctx, onEvent)
	return sub, nil
}

func (sub *Subscription) deliver(ctx context.Context, onEvent func(Event)) {
	for {
		select {
		case <-sub.closing:
			return
		case <-ctx.Done():
			sub.Close()
			return
		case <-sub.stream.Done:
			// Close stops the stream too; only an unrequested drop is a failure.
			select {
			case <-sub.closing:
				return
			default:
			}
			sub.fail(core.Errorf(core.TransportFailure, sub.Channel, "event stream dropped by transport"))
			return
		case ev := <-sub.stream.C:
			select {
			case <-sub.closing:
				return
			default:
			}
			if onEvent != nil {
				onEvent(ev)
			}
			switch ev.Type {
			case TypeComplete:
				sub.Close()
				return
			case TypeError:
				sub.fail(FailureError(sub.Channel, ev.Payload))
				return
			}
		}
	}
}

func (sub *Subscription) fail(err error) {
	sub.mu.Lock()
	if sub.err == nil {
		sub.err = err
	}
	sub.mu.Unlock()
	sub.Close()
}

// Close tears the subscription down. Calls after the first are no-ops.
// An onEvent call already in progress is allowed to finish.
func (sub *Subscription) Close() {
	sub.once.Do(func() {
		close(sub.closing)
		sub.stream.Close()
		observability.SubscriptionClosed()
		sub.log.Debug("subscription closed", "subscription", sub.ID, "channel", sub.Channel)
		close(sub.done)
	})
}

// Done is closed once the subscription has been torn down.
func (sub *Subscription) Done() <-chan struct{} {
	return sub.done
}

// Err returns the terminal failure, if the stream ended with one.
func (sub *Subscription) Err() error {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.err
}
