package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/docker/docker/pkg/jsonmessage"

	"github.com/germanoeich/dockctl/internal/core"
	"github.com/germanoeich/dockctl/internal/events"
)

// maxLogLine bounds a single log line; longer lines fail the stream.
const maxLogLine = 1 << 20

// progressPayload is the wire shape published on the pull-progress channel.
type progressPayload struct {
	ID             string          `json:"id,omitempty"`
	Status         string          `json:"status"`
	ProgressDetail *progressDetail `json:"progress_detail,omitempty"`
}

type progressDetail struct {
	Current *int64 `json:"current,omitempty"`
	Total   *int64 `json:"total,omitempty"`
}

// pullImage decodes the runtime's JSON message stream, republishes each
// message as a progress payload and ends the channel with a terminal event.
func (g *Gateway) pullImage(ctx context.Context, ref string) (err error) {
	channel := events.ChannelPullProgress
	defer func() { g.finish(ctx, channel, err) }()

	rc, err := g.client.PullImage(ctx, ref)
	if err != nil {
		return err
	}
	defer rc.Close()

	dec := json.NewDecoder(rc)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return core.Errorf(core.TransportFailure, string(PullImage), "decode progress stream: %v", err)
		}

		if msg.Error != nil {
			return core.Errorf(core.BackendRejected, string(PullImage), "%s", msg.Error.Message)
		}

		payload, err := json.Marshal(toProgressPayload(msg))
		if err != nil {
			return fmt.Errorf("encode progress: %w", err)
		}
		if err := g.bus.Publish(ctx, events.Data(channel, payload)); err != nil {
			return core.Wrap(core.TransportFailure, string(PullImage), err)
		}
	}
}

func toProgressPayload(msg jsonmessage.JSONMessage) progressPayload {
	p := progressPayload{ID: msg.ID, Status: msg.Status}
	if pr := msg.Progress; pr != nil && (pr.Current > 0 || pr.Total > 0) {
		d := &progressDetail{}
		if pr.Current > 0 {
			cur := pr.Current
			d.Current = &cur
		}
		if pr.Total > 0 {
			tot := pr.Total
			d.Total = &tot
		}
		p.ProgressDetail = d
	}
	return p
}

// emitLogs publishes each log line of the container as a JSON string and ends
// the channel with a terminal event.
func (g *Gateway) emitLogs(ctx context.Context, name string) (err error) {
	channel := events.LogsChannel(name)
	defer func() { g.finish(ctx, channel, err) }()

	rc, err := g.client.StreamLogs(ctx, name)
	if err != nil {
		return err
	}
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLogLine)
	for scanner.Scan() {
		line, _ := json.Marshal(scanner.Text())
		if err := g.bus.Publish(ctx, events.Data(channel, line)); err != nil {
			return core.Wrap(core.TransportFailure, string(EmitLogs), err)
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return core.Errorf(core.TransportFailure, string(EmitLogs), "read log stream: %v", err)
	}
	return nil
}

// finish publishes the terminal event matching err. A done ctx is detached so
// listeners still see the end of the stream.
func (g *Gateway) finish(ctx context.Context, channel string, err error) {
	ev := events.Complete(channel)
	if err != nil {
		ev = events.Failure(channel, classify(channel, err))
	}
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
	}
	if perr := g.bus.Publish(ctx, ev); perr != nil && !errors.Is(perr, events.ErrBusClosed) {
		g.log.Warn("publish terminal event failed", "channel", channel, "err", perr)
	}
}
