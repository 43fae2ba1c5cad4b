// Package gateway dispatches named commands to the container runtime and maps
// every failure onto the BackendRejected / TransportFailure taxonomy.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"

	"github.com/germanoeich/dockctl/internal/core"
	"github.com/germanoeich/dockctl/internal/dockerx"
	"github.com/germanoeich/dockctl/internal/events"
	"github.com/germanoeich/dockctl/internal/observability"
)

// Publisher is where streaming commands push their events.
type Publisher interface {
	Publish(ctx context.Context, e events.Event) error
}

// Gateway executes commands against a dockerx.Client. It holds no resource
// state; retries are left to the caller.
type Gateway struct {
	client dockerx.Client
	bus    Publisher
	log    *slog.Logger
}

// New creates a Gateway. A nil logger uses slog.Default().
func New(c dockerx.Client, bus Publisher, log *slog.Logger) *Gateway {
	return &Gateway{client: c, bus: bus, log: observability.OrDefault(log)}
}

// Execute runs cmd with params. On failure the error is a *core.Error of kind
// ValidationFailed (rejected before dispatch), BackendRejected or
// TransportFailure. An unknown command returns an error wrapping
// ErrUnknownCommand.
func (g *Gateway) Execute(ctx context.Context, cmd Command, params Params) (any, error) {
	spec, ok := commands[cmd]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}
	if err := spec.validate(cmd, params); err != nil {
		observability.RecordCommand(string(cmd), string(core.ValidationFailed), 0)
		return nil, err
	}

	ctx, span := observability.StartCommandSpan(ctx, string(cmd))
	defer span.End()

	start := time.Now()
	result, err := spec.run(ctx, g, params)
	elapsed := time.Since(start)

	if err != nil {
		err = classify(string(cmd), err)
		kind := string(core.KindOf(err))
		observability.RecordSpanError(span, err, kind)
		observability.RecordCommand(string(cmd), kind, elapsed)
		g.log.Warn("command failed", "command", cmd, "kind", kind, "elapsed", elapsed, "err", err)
		return nil, err
	}

	observability.RecordCommand(string(cmd), "ok", elapsed)
	g.log.Debug("command ok", "command", cmd, "elapsed", elapsed)
	return result, nil
}

// classify tags a raw runtime error. Errors the daemon answered with are
// BackendRejected; anything that never got an answer is TransportFailure.
func classify(op string, err error) error {
	var ce *core.Error
	if errors.As(err, &ce) {
		if ce.Op != "" {
			return ce
		}
		tagged := *ce
		tagged.Op = op
		return &tagged
	}

	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		client.IsErrConnectionFailed(err),
		errdefs.IsUnavailable(err),
		errdefs.IsDeadline(err),
		errdefs.IsCancelled(err):
		return &core.Error{Kind: core.TransportFailure, Op: op, Message: err.Error(), Err: err}
	case errdefs.IsNotFound(err),
		errdefs.IsConflict(err),
		errdefs.IsInvalidParameter(err),
		errdefs.IsForbidden(err),
		errdefs.IsUnauthorized(err),
		errdefs.IsNotModified(err),
		errdefs.IsNotImplemented(err),
		errdefs.IsSystem(err),
		errdefs.IsDataLoss(err):
		return &core.Error{Kind: core.BackendRejected, Op: op, Message: err.Error(), Err: err}
	default:
		return &core.Error{Kind: core.TransportFailure, Op: op, Message: err.Error(), Err: err}
	}
}

func call[T any](ctx context.Context, g *Gateway, cmd Command, p Params) (T, error) {
	var zero T
	v, err := g.Execute(ctx, cmd, p)
	if err != nil || v == nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%s: unexpected result type %T", cmd, v)
	}
	return t, nil
}

func (g *Gateway) exec(ctx context.Context, cmd Command, p Params) error {
	_, err := g.Execute(ctx, cmd, p)
	return err
}

func (g *Gateway) ListContainers(ctx context.Context) ([]core.ContainerSummary, error) {
	return call[[]core.ContainerSummary](ctx, g, ListContainers, Params{})
}

// CreateContainer creates and starts a container. portMapping may be "".
func (g *Gateway) CreateContainer(ctx context.Context, image, portMapping string) error {
	return g.exec(ctx, CreateContainer, Params{Image: image, PortMapping: portMapping})
}

// ContainerAction runs one of the per-container lifecycle commands.
func (g *Gateway) ContainerAction(ctx context.Context, cmd Command, containerName string) error {
	return g.exec(ctx, cmd, Params{ContainerName: containerName})
}

// EmitLogs streams the container's log to events.LogsChannel(containerName)
// and returns when the log ends or ctx is done.
func (g *Gateway) EmitLogs(ctx context.Context, containerName string) error {
	return g.exec(ctx, EmitLogs, Params{ContainerName: containerName})
}

func (g *Gateway) ListImages(ctx context.Context) ([]core.ImageSummary, error) {
	return call[[]core.ImageSummary](ctx, g, ListImages, Params{})
}

// PullImage pulls imageName, publishing progress on events.ChannelPullProgress.
func (g *Gateway) PullImage(ctx context.Context, imageName string) error {
	return g.exec(ctx, PullImage, Params{ImageName: imageName})
}

func (g *Gateway) RemoveImage(ctx context.Context, image string) error {
	return g.exec(ctx, RemoveImage, Params{Image: image})
}

func (g *Gateway) ListNetworks(ctx context.Context) ([]core.NetworkSummary, error) {
	return call[[]core.NetworkSummary](ctx, g, ListNetworks, Params{})
}

func (g *Gateway) CreateNetwork(ctx context.Context, name, driver string) error {
	return g.exec(ctx, CreateNetwork, Params{Name: name, Driver: driver})
}

func (g *Gateway) RemoveNetwork(ctx context.Context, networkID string) error {
	return g.exec(ctx, RemoveNetwork, Params{NetworkID: networkID})
}

func (g *Gateway) ConnectNetwork(ctx context.Context, containerID, networkID string) error {
	return g.exec(ctx, ConnectNetwork, Params{ContainerID: containerID, NetworkID: networkID})
}

func (g *Gateway) DisconnectNetwork(ctx context.Context, containerID, networkID string) error {
	return g.exec(ctx, DisconnectNetwork, Params{ContainerID: containerID, NetworkID: networkID})
}

func (g *Gateway) ListNetworkContainers(ctx context.Context, networkID string) ([]core.NetworkMembership, error) {
	return call[[]core.NetworkMembership](ctx, g, ListNetworkContainers, Params{NetworkID: networkID})
}

func (g *Gateway) ListVolumes(ctx context.Context) ([]core.VolumeSummary, error) {
	return call[[]core.VolumeSummary](ctx, g, ListVolumes, Params{})
}

func (g *Gateway) CreateVolume(ctx context.Context, name string) error {
	return g.exec(ctx, CreateVolume, Params{VolumeName: name})
}

func (g *Gateway) RemoveVolume(ctx context.Context, name string) error {
	return g.exec(ctx, RemoveVolume, Params{VolumeName: name})
}
