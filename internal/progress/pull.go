package progress

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/germanoeich/dockctl/internal/core"
	"github.com/germanoeich/dockctl/internal/events"
	"github.com/germanoeich/dockctl/internal/observability"
)

// ImagePuller dispatches the pull_image command.
type ImagePuller interface {
	PullImage(ctx context.Context, imageName string) error
}

// Puller runs image pulls end to end. Pulls share the pull-progress channel,
// so a Puller runs one at a time.
type Puller struct {
	gw  ImagePuller
	sub *events.Subscriber
	log *slog.Logger

	mu sync.Mutex
}

// NewPuller creates a Puller. A nil logger uses slog.Default().
func NewPuller(gw ImagePuller, sub *events.Subscriber, log *slog.Logger) *Puller {
	return &Puller{gw: gw, sub: sub, log: observability.OrDefault(log)}
}

// Pull pulls image and returns the final aggregated state. onUpdate, if set, is
// called with every new state from the subscriber goroutine. Pull returns only
// after both the command response and the stream's terminal event arrived, and
// the subscription is closed on every return path.
func (p *Puller) Pull(ctx context.Context, image string, onUpdate func(State)) (State, error) {
	if strings.TrimSpace(image) == "" {
		return State{}, core.Errorf(core.ValidationFailed, "pull_image", "image name is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var (
		mu    sync.Mutex
		state State
	)
	sub, err := p.sub.Subscribe(ctx, events.ChannelPullProgress, func(ev events.Event) {
		if ev.Type != events.TypeData {
			return
		}
		pe, err := DecodeEvent(ev.Payload)
		if err != nil {
			p.log.Warn("skipping pull progress event", "image", image, "err", err)
			return
		}
		mu.Lock()
		state = Apply(state, pe)
		snap := state
		mu.Unlock()
		if onUpdate != nil {
			onUpdate(snap)
		}
	})
	if err != nil {
		return State{}, err
	}
	defer sub.Close()

	p.log.Info("pulling image", "image", image, "subscription", sub.ID)
	cmdErr := p.gw.PullImage(ctx, image)

	// A command rejected before dispatch never opens the stream.
	if core.KindOf(cmdErr) != core.ValidationFailed {
		select {
		case <-sub.Done():
		case <-ctx.Done():
		}
	}

	mu.Lock()
	final := state
	mu.Unlock()

	switch {
	case cmdErr != nil:
		return final, cmdErr
	case sub.Err() != nil:
		return final, sub.Err()
	case ctx.Err() != nil:
		return final, core.Wrap(core.TransportFailure, "pull_image", ctx.Err())
	}
	p.log.Info("image pulled", "image", image, "layers", len(final.Percent))
	return final, nil
}
