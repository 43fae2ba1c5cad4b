package console

import (
	"context"

	"github.com/germanoeich/dockctl/internal/actions"
	"github.com/germanoeich/dockctl/internal/core"
	"github.com/germanoeich/dockctl/internal/progress"
)

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// Containers returns the last applied container snapshot.
func (c *Console) Containers() []core.ContainerSummary {
	s, _ := c.containers.Latest()
	return orEmpty(s)
}

// Images returns the last applied image snapshot.
func (c *Console) Images() []core.ImageSummary {
	s, _ := c.images.Latest()
	return orEmpty(s)
}

// Networks returns the last applied network snapshot.
func (c *Console) Networks() []core.NetworkSummary {
	s, _ := c.networks.Latest()
	return orEmpty(s)
}

// Volumes returns the last applied volume snapshot.
func (c *Console) Volumes() []core.VolumeSummary {
	s, _ := c.volumes.Latest()
	return orEmpty(s)
}

// Do runs a lifecycle action on a container. See actions.Coordinator.Do.
func (c *Console) Do(ctx context.Context, name string, action actions.Action) error {
	return c.coord.Do(ctx, name, action)
}

// ActionStatus returns the tracked state of name's last action.
func (c *Console) ActionStatus(name string) actions.ActionState {
	return c.coord.Status(name)
}

// AvailableActions returns the actions currently legal for name.
func (c *Console) AvailableActions(name string) []actions.Action {
	return c.coord.Available(name)
}

// CreateContainer creates and starts a container from image.
func (c *Console) CreateContainer(ctx context.Context, image, portMapping string) error {
	if err := c.gw.CreateContainer(ctx, image, portMapping); err != nil {
		return err
	}
	c.refresh(ctx, ResourceContainers, c.containers)
	return nil
}

// PullImage pulls image, reporting progress to onUpdate, and refreshes the
// image list once the pull has fully finished.
func (c *Console) PullImage(ctx context.Context, image string, onUpdate func(progress.State)) (progress.State, error) {
	st, err := c.puller.Pull(ctx, image, onUpdate)
	if err != nil {
		return st, err
	}
	c.refresh(ctx, ResourceImages, c.images)
	return st, nil
}

// RemoveImage force-removes image.
func (c *Console) RemoveImage(ctx context.Context, image string) error {
	if err := c.gw.RemoveImage(ctx, image); err != nil {
		return err
	}
	c.refresh(ctx, ResourceImages, c.images)
	return nil
}

// CreateNetwork creates a network. An empty driver means bridge.
func (c *Console) CreateNetwork(ctx context.Context, name, driver string) error {
	if err := c.gw.CreateNetwork(ctx, name, driver); err != nil {
		return err
	}
	c.refresh(ctx, ResourceNetworks, c.networks)
	return nil
}

// RemoveNetwork removes a network and its cached memberships.
func (c *Console) RemoveNetwork(ctx context.Context, networkID string) error {
	if err := c.gw.RemoveNetwork(ctx, networkID); err != nil {
		return err
	}
	c.dropMemberships(networkID)
	c.refresh(ctx, ResourceNetworks, c.networks)
	return nil
}

// Connect attaches a container to a network.
func (c *Console) Connect(ctx context.Context, containerID, networkID string) error {
	if err := c.gw.ConnectNetwork(ctx, containerID, networkID); err != nil {
		return err
	}
	c.dropMemberships(networkID)
	return nil
}

// Disconnect detaches a container from a network. Cached memberships of that
// network are invalidated.
func (c *Console) Disconnect(ctx context.Context, containerID, networkID string) error {
	if err := c.gw.DisconnectNetwork(ctx, containerID, networkID); err != nil {
		return err
	}
	c.dropMemberships(networkID)
	return nil
}

func (c *Console) dropMemberships(networkID string) {
	c.mu.Lock()
	delete(c.memberships, networkID)
	c.mu.Unlock()
}

// NetworkContainers returns the containers attached to networkID. Results are
// cached per network until a connect, disconnect or removal invalidates them,
// or until a container poll shows a container appear, vanish or change state.
func (c *Console) NetworkContainers(ctx context.Context, networkID string) ([]core.NetworkMembership, error) {
	c.mu.Lock()
	cached, ok := c.memberships[networkID]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	members, err := c.gw.ListNetworkContainers(ctx, networkID)
	if err != nil {
		return nil, err
	}
	if members == nil {
		members = []core.NetworkMembership{}
	}
	c.mu.Lock()
	c.memberships[networkID] = members
	c.mu.Unlock()
	return members, nil
}

// CreateVolume creates a named volume.
func (c *Console) CreateVolume(ctx context.Context, name string) error {
	if err := c.gw.CreateVolume(ctx, name); err != nil {
		return err
	}
	c.refresh(ctx, ResourceVolumes, c.volumes)
	return nil
}

// RemoveVolume removes a volume.
func (c *Console) RemoveVolume(ctx context.Context, name string) error {
	if err := c.gw.RemoveVolume(ctx, name); err != nil {
		return err
	}
	c.refresh(ctx, ResourceVolumes, c.volumes)
	return nil
}

// Logs starts following name in the background if needed and returns the
// buffered lines after since that pass q.
func (c *Console) Logs(name string, since uint64, q core.LineQuery) ([]core.LogLine, error) {
	if name == "" {
		return nil, core.Errorf(core.ValidationFailed, "emit_logs", "container name is required")
	}
	c.mu.Lock()
	ctx := c.runCtx
	c.mu.Unlock()
	c.logs.Start(ctx, name)
	lines := core.FilterLines(c.logs.Lines(name, since), q)
	if lines == nil {
		lines = []core.LogLine{}
	}
	return lines, nil
}
