package dockerx

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"

	"github.com/germanoeich/dockctl/internal/core"
)

const (
	// stopTimeout is how long a stop waits before the runtime sends SIGKILL.
	stopTimeout = 10 * time.Second
	// defaultNetworkDriver is used by CreateNetwork when no driver is given.
	defaultNetworkDriver = "bridge"
)

// RealClient implements Client using the Docker SDK.
type RealClient struct {
	client *client.Client
}

// NewRealClient creates a Docker client from the environment (DOCKER_HOST etc.)
// or from host when it is non-empty, and pings the daemon.
func NewRealClient(ctx context.Context, host string) (*RealClient, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	if _, err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("docker daemon not reachable: %w", err)
	}

	return &RealClient{client: cli}, nil
}

// Close closes the Docker client connection.
func (c *RealClient) Close() error {
	return c.client.Close()
}

// ListContainers returns all containers, running or not.
func (c *RealClient) ListContainers(ctx context.Context) ([]core.ContainerSummary, error) {
	containers, err := c.client.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	result := make([]core.ContainerSummary, 0, len(containers))
	for _, ctr := range containers {
		var name *string
		if len(ctr.Names) > 0 {
			n := strings.TrimPrefix(ctr.Names[0], "/")
			name = &n
		}

		ports := make([]string, 0, len(ctr.Ports))
		for _, p := range ctr.Ports {
			ports = append(ports, formatPort(p.IP, p.PublicPort, p.PrivatePort, p.Type))
		}

		result = append(result, core.ContainerSummary{
			Name:   name,
			Status: ctr.Status,
			State:  core.ParseContainerState(ctr.State),
			Ports:  ports,
		})
	}
	return result, nil
}

func formatPort(ip string, public, private uint16, proto string) string {
	if public == 0 {
		return fmt.Sprintf("%d/%s", private, proto)
	}
	if ip == "" {
		return fmt.Sprintf("%d->%d/%s", public, private, proto)
	}
	return fmt.Sprintf("%s:%d->%d/%s", ip, public, private, proto)
}

// CreateContainer creates a container from image, binding the port mapping on
// all host interfaces, and starts it.
func (c *RealClient) CreateContainer(ctx context.Context, img string, ports *core.PortMapping) error {
	cfg := &container.Config{Image: img}
	hostCfg := &container.HostConfig{}

	if ports != nil {
		port, err := nat.NewPort("tcp", strconv.Itoa(ports.ContainerPort))
		if err != nil {
			return fmt.Errorf("invalid container port: %w", err)
		}
		cfg.ExposedPorts = nat.PortSet{port: struct{}{}}
		hostCfg.PortBindings = nat.PortMap{
			port: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: strconv.Itoa(ports.HostPort)}},
		}
	}

	resp, err := c.client.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	if err := c.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container %s: %w", resp.ID, err)
	}
	return nil
}

func (c *RealClient) StartContainer(ctx context.Context, name string) error {
	if err := c.client.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container %q: %w", name, err)
	}
	return nil
}

func (c *RealClient) StopContainer(ctx context.Context, name string) error {
	timeout := int(stopTimeout.Seconds())
	if err := c.client.ContainerStop(ctx, name, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container %q: %w", name, err)
	}
	return nil
}

func (c *RealClient) PauseContainer(ctx context.Context, name string) error {
	if err := c.client.ContainerPause(ctx, name); err != nil {
		return fmt.Errorf("failed to pause container %q: %w", name, err)
	}
	return nil
}

func (c *RealClient) UnpauseContainer(ctx context.Context, name string) error {
	if err := c.client.ContainerUnpause(ctx, name); err != nil {
		return fmt.Errorf("failed to unpause container %q: %w", name, err)
	}
	return nil
}

func (c *RealClient) KillContainer(ctx context.Context, name string) error {
	if err := c.client.ContainerKill(ctx, name, "SIGKILL"); err != nil {
		return fmt.Errorf("failed to kill container %q: %w", name, err)
	}
	return nil
}

// RemoveContainer force-removes the container together with its anonymous volumes.
func (c *RealClient) RemoveContainer(ctx context.Context, name string) error {
	err := c.client.ContainerRemove(ctx, name, container.RemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil {
		return fmt.Errorf("failed to delete container %q: %w", name, err)
	}
	return nil
}

// StreamLogs returns the full, followed log of the container with stdout and
// stderr demultiplexed into one stream.
func (c *RealClient) StreamLogs(ctx context.Context, name string) (io.ReadCloser, error) {
	logs, err := c.client.ContainerLogs(ctx, name, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
		Timestamps: true,
		Tail:       "all",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get container logs: %w", err)
	}

	return demux(logs), nil
}

// demux merges a multiplexed stdout/stderr stream into one reader and closes
// src when the copy ends.
func demux(src io.ReadCloser) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, src)
		src.Close()
		if err != nil {
			pw.CloseWithError(fmt.Errorf("log demux error: %w", err))
			return
		}
		pw.Close()
	}()
	return pr
}

func (c *RealClient) ListImages(ctx context.Context) ([]core.ImageSummary, error) {
	images, err := c.client.ImageList(ctx, image.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}

	result := make([]core.ImageSummary, 0, len(images))
	for _, img := range images {
		tag := ""
		if len(img.RepoTags) > 0 {
			tag = img.RepoTags[0]
		}
		result = append(result, core.ImageSummary{RepoTag: tag, Size: img.Size})
	}
	return result, nil
}

func (c *RealClient) PullImage(ctx context.Context, ref string) (io.ReadCloser, error) {
	rc, err := c.client.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to pull image %q: %w", ref, err)
	}
	return rc, nil
}

func (c *RealClient) RemoveImage(ctx context.Context, ref string) error {
	if _, err := c.client.ImageRemove(ctx, ref, image.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("failed to remove image %q: %w", ref, err)
	}
	return nil
}

func (c *RealClient) ListNetworks(ctx context.Context) ([]core.NetworkSummary, error) {
	nets, err := c.client.NetworkList(ctx, network.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list networks: %w", err)
	}

	result := make([]core.NetworkSummary, 0, len(nets))
	for _, n := range nets {
		internal, ipv6 := n.Internal, n.EnableIPv6
		result = append(result, core.NetworkSummary{
			ID:         n.ID,
			Name:       n.Name,
			Driver:     n.Driver,
			Scope:      n.Scope,
			Internal:   &internal,
			EnableIPv6: &ipv6,
			Labels:     n.Labels,
		})
	}
	return result, nil
}

func (c *RealClient) CreateNetwork(ctx context.Context, name, driver string) error {
	if driver == "" {
		driver = defaultNetworkDriver
	}
	if _, err := c.client.NetworkCreate(ctx, name, network.CreateOptions{Driver: driver}); err != nil {
		return fmt.Errorf("failed to create network %q: %w", name, err)
	}
	return nil
}

func (c *RealClient) RemoveNetwork(ctx context.Context, networkID string) error {
	if err := c.client.NetworkRemove(ctx, networkID); err != nil {
		return fmt.Errorf("failed to remove network %q: %w", networkID, err)
	}
	return nil
}

func (c *RealClient) ConnectNetwork(ctx context.Context, containerID, networkID string) error {
	if err := c.client.NetworkConnect(ctx, networkID, containerID, nil); err != nil {
		return fmt.Errorf("failed to connect container %q to network %q: %w", containerID, networkID, err)
	}
	return nil
}

func (c *RealClient) DisconnectNetwork(ctx context.Context, containerID, networkID string) error {
	if err := c.client.NetworkDisconnect(ctx, networkID, containerID, false); err != nil {
		return fmt.Errorf("failed to disconnect container %q from network %q: %w", containerID, networkID, err)
	}
	return nil
}

// NetworkContainers lists the containers attached to a network, ordered by name.
func (c *RealClient) NetworkContainers(ctx context.Context, networkID string) ([]core.NetworkMembership, error) {
	inspect, err := c.client.NetworkInspect(ctx, networkID, network.InspectOptions{Verbose: true})
	if err != nil {
		return nil, fmt.Errorf("failed to inspect network %q: %w", networkID, err)
	}

	result := make([]core.NetworkMembership, 0, len(inspect.Containers))
	for id, ep := range inspect.Containers {
		name := ep.Name
		if name == "" {
			name = "Unnamed"
		}
		result = append(result, core.NetworkMembership{ID: id, Name: name, NetworkID: inspect.ID})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// ListVolumes returns dangling volumes, the ones not referenced by any container.
func (c *RealClient) ListVolumes(ctx context.Context) ([]core.VolumeSummary, error) {
	resp, err := c.client.VolumeList(ctx, volume.ListOptions{
		Filters: filters.NewArgs(filters.Arg("dangling", "1")),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list volumes: %w", err)
	}

	result := make([]core.VolumeSummary, 0, len(resp.Volumes))
	for _, v := range resp.Volumes {
		if v == nil {
			continue
		}
		var status map[string]string
		if len(v.Status) > 0 {
			status = make(map[string]string, len(v.Status))
			for k, val := range v.Status {
				status[k] = fmt.Sprint(val)
			}
		}
		result = append(result, core.VolumeSummary{
			Name:       v.Name,
			Driver:     v.Driver,
			Mountpoint: v.Mountpoint,
			Scope:      v.Scope,
			Labels:     v.Labels,
			Status:     status,
		})
	}
	return result, nil
}

func (c *RealClient) CreateVolume(ctx context.Context, name string) error {
	if _, err := c.client.VolumeCreate(ctx, volume.CreateOptions{Name: name}); err != nil {
		return fmt.Errorf("failed to create volume %q: %w", name, err)
	}
	return nil
}

func (c *RealClient) RemoveVolume(ctx context.Context, name string) error {
	if err := c.client.VolumeRemove(ctx, name, false); err != nil {
		return fmt.Errorf("failed to remove volume %q: %w", name, err)
	}
	return nil
}

var _ Client = (*RealClient)(nil)
