package dockerx

import (
	"context"
	"io"

	"github.com/germanoeich/dockctl/internal/core"
)

// Client abstracts the container runtime operations the console dispatches.
// Implementations return raw runtime errors; classification happens in the
// gateway.
type Client interface {
	ListContainers(ctx context.Context) ([]core.ContainerSummary, error)
	// CreateContainer creates a container from image and starts it. ports may be nil.
	CreateContainer(ctx context.Context, image string, ports *core.PortMapping) error
	StartContainer(ctx context.Context, name string) error
	StopContainer(ctx context.Context, name string) error
	PauseContainer(ctx context.Context, name string) error
	UnpauseContainer(ctx context.Context, name string) error
	KillContainer(ctx context.Context, name string) error
	RemoveContainer(ctx context.Context, name string) error
	// StreamLogs returns the demultiplexed stdout/stderr of the container,
	// one line per newline. Lines may carry a leading RFC3339Nano timestamp
	// and a space. The caller closes the reader.
	StreamLogs(ctx context.Context, name string) (io.ReadCloser, error)

	ListImages(ctx context.Context) ([]core.ImageSummary, error)
	// PullImage returns the runtime's JSON progress stream. The caller closes it.
	PullImage(ctx context.Context, image string) (io.ReadCloser, error)
	RemoveImage(ctx context.Context, image string) error

	ListNetworks(ctx context.Context) ([]core.NetworkSummary, error)
	CreateNetwork(ctx context.Context, name, driver string) error
	RemoveNetwork(ctx context.Context, networkID string) error
	ConnectNetwork(ctx context.Context, containerID, networkID string) error
	DisconnectNetwork(ctx context.Context, containerID, networkID string) error
	NetworkContainers(ctx context.Context, networkID string) ([]core.NetworkMembership, error)

	ListVolumes(ctx context.Context) ([]core.VolumeSummary, error)
	CreateVolume(ctx context.Context, name string) error
	RemoveVolume(ctx context.Context, name string) error
}
