// Package console wires the gateway, pollers, action coordinator, pulls and log
// followers into one object the HTTP surface talks to.
package console

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/germanoeich/dockctl/internal/actions"
	"github.com/germanoeich/dockctl/internal/config"
	"github.com/germanoeich/dockctl/internal/core"
	"github.com/germanoeich/dockctl/internal/dockerx"
	"github.com/germanoeich/dockctl/internal/events"
	"github.com/germanoeich/dockctl/internal/gateway"
	"github.com/germanoeich/dockctl/internal/logs"
	"github.com/germanoeich/dockctl/internal/observability"
	"github.com/germanoeich/dockctl/internal/poller"
	"github.com/germanoeich/dockctl/internal/progress"
)

// Resource names, used as poller labels.
const (
	ResourceContainers = "containers"
	ResourceImages     = "images"
	ResourceNetworks   = "networks"
	ResourceVolumes    = "volumes"
)

// Console holds the synchronized view of one container runtime.
type Console struct {
	log *slog.Logger
	bus *events.Bus
	gw  *gateway.Gateway

	containers *poller.Poller[core.ContainerSummary]
	images     *poller.Poller[core.ImageSummary]
	networks   *poller.Poller[core.NetworkSummary]
	volumes    *poller.Poller[core.VolumeSummary]

	coord  *actions.Coordinator
	puller *progress.Puller
	logs   *logs.Follower

	mu          sync.Mutex
	cfg         config.Config
	memberships map[string][]core.NetworkMembership // networkID -> members
	seen        map[string]core.ContainerState      // last container snapshot
	pollErrs    map[string]error
	runCtx      context.Context
	cancel      context.CancelFunc
}

// New builds a stopped Console over client. A nil logger uses slog.Default().
func New(cfg config.Config, client dockerx.Client, log *slog.Logger) *Console {
	log = observability.OrDefault(log)
	bus := events.NewBus()
	gw := gateway.New(client, bus, log)
	sub := events.NewSubscriber(bus, log)

	c := &Console{
		log:         log,
		bus:         bus,
		gw:          gw,
		cfg:         cfg,
		memberships: make(map[string][]core.NetworkMembership),
		pollErrs:    make(map[string]error),
		runCtx:      context.Background(),
	}

	c.containers = poller.New(poller.Config[core.ContainerSummary]{
		Resource: ResourceContainers,
		Fetch:    gw.ListContainers,
		OnSnapshot: func(s []core.ContainerSummary) {
			c.pollOK(ResourceContainers)
			c.observeContainers(s)
			c.coord.Observe(s)
			c.logs.Observe(s)
		},
		OnError: c.pollFailed(ResourceContainers),
		Logger:  log,
	})
	c.images = poller.New(poller.Config[core.ImageSummary]{
		Resource:   ResourceImages,
		Fetch:      gw.ListImages,
		OnSnapshot: func([]core.ImageSummary) { c.pollOK(ResourceImages) },
		OnError:    c.pollFailed(ResourceImages),
		Logger:     log,
	})
	c.networks = poller.New(poller.Config[core.NetworkSummary]{
		Resource:   ResourceNetworks,
		Fetch:      gw.ListNetworks,
		OnSnapshot: c.observeNetworks,
		OnError:    c.pollFailed(ResourceNetworks),
		Logger:     log,
	})
	c.volumes = poller.New(poller.Config[core.VolumeSummary]{
		Resource:   ResourceVolumes,
		Fetch:      gw.ListVolumes,
		OnSnapshot: func([]core.VolumeSummary) { c.pollOK(ResourceVolumes) },
		OnError:    c.pollFailed(ResourceVolumes),
		Logger:     log,
	})

	c.coord = actions.NewCoordinator(gw, c.containers, c.containers.Latest, log)
	c.puller = progress.NewPuller(gw, sub, log)
	c.logs = logs.NewFollower(gw, sub, cfg.LogRingCapacity, log)
	return c
}

// Start starts every poller. Each issues its first fetch immediately.
func (c *Console) Start(ctx context.Context) {
	c.mu.Lock()
	runCtx, cancel := context.WithCancel(ctx)
	c.runCtx, c.cancel = runCtx, cancel
	poll := c.cfg.Poll
	c.mu.Unlock()

	c.containers.Start(runCtx, poll.Containers)
	c.images.Start(runCtx, poll.Images)
	c.networks.Start(runCtx, poll.Networks)
	c.volumes.Start(runCtx, poll.Volumes)
	c.log.Info("console started",
		"containers", poll.Containers, "images", poll.Images,
		"networks", poll.Networks, "volumes", poll.Volumes)
}

// Stop stops the pollers and log followers and closes the event bus.
func (c *Console) Stop() {
	c.containers.Stop()
	c.images.Stop()
	c.networks.Stop()
	c.volumes.Stop()
	c.logs.Stop()

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
	c.bus.Close()
	c.log.Info("console stopped")
}

// ApplyConfig retunes running pollers to cfg's intervals. Other settings need
// a restart.
func (c *Console) ApplyConfig(cfg config.Config) {
	c.mu.Lock()
	c.cfg.Poll = cfg.Poll
	c.mu.Unlock()

	c.containers.SetInterval(cfg.Poll.Containers)
	c.images.SetInterval(cfg.Poll.Images)
	c.networks.SetInterval(cfg.Poll.Networks)
	c.volumes.SetInterval(cfg.Poll.Volumes)
	c.log.Info("poll intervals updated",
		"containers", cfg.Poll.Containers, "images", cfg.Poll.Images,
		"networks", cfg.Poll.Networks, "volumes", cfg.Poll.Volumes)
}

func (c *Console) pollOK(resource string) {
	c.mu.Lock()
	delete(c.pollErrs, resource)
	c.mu.Unlock()
}

func (c *Console) pollFailed(resource string) func(error) {
	return func(err error) {
		c.mu.Lock()
		c.pollErrs[resource] = err
		c.mu.Unlock()
	}
}

// observeContainers drops every cached membership when a container appeared,
// vanished or changed state.
func (c *Console) observeContainers(snap []core.ContainerSummary) {
	seen := make(map[string]core.ContainerState, len(snap))
	for _, s := range snap {
		seen[s.Key()] = s.State
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !maps.Equal(seen, c.seen) {
		clear(c.memberships)
	}
	c.seen = seen
}

// observeNetworks drops cached memberships of networks that no longer exist.
func (c *Console) observeNetworks(snap []core.NetworkSummary) {
	live := make(map[string]struct{}, len(snap))
	for _, n := range snap {
		live[n.ID] = struct{}{}
	}
	c.mu.Lock()
	delete(c.pollErrs, ResourceNetworks)
	for id := range c.memberships {
		if _, ok := live[id]; !ok {
			delete(c.memberships, id)
		}
	}
	c.mu.Unlock()
}

// ResourceStatus describes one poller for health reporting.
type ResourceStatus struct {
	Running   bool          `json:"running"`
	Interval  time.Duration `json:"interval"`
	HasData   bool          `json:"hasData"`
	LastError string        `json:"lastError,omitempty"`
}

// Status reports each poller's state and its last failure, if the most recent
// fetch failed.
func (c *Console) Status() map[string]ResourceStatus {
	c.mu.Lock()
	errs := make(map[string]error, len(c.pollErrs))
	for k, v := range c.pollErrs {
		errs[k] = v
	}
	c.mu.Unlock()

	out := make(map[string]ResourceStatus, 4)
	add := func(name string, running bool, interval time.Duration, hasData bool) {
		st := ResourceStatus{Running: running, Interval: interval, HasData: hasData}
		if err := errs[name]; err != nil {
			st.LastError = err.Error()
		}
		out[name] = st
	}
	_, ok := c.containers.Latest()
	add(ResourceContainers, c.containers.Running(), c.containers.Interval(), ok)
	_, ok = c.images.Latest()
	add(ResourceImages, c.images.Running(), c.images.Interval(), ok)
	_, ok = c.networks.Latest()
	add(ResourceNetworks, c.networks.Running(), c.networks.Interval(), ok)
	_, ok = c.volumes.Latest()
	add(ResourceVolumes, c.volumes.Running(), c.volumes.Interval(), ok)
	return out
}

// refresh re-fetches a collection after a successful mutation. A failed
// refresh is logged; the mutation itself already succeeded.
func (c *Console) refresh(ctx context.Context, resource string, r actions.Refresher) {
	if err := r.RefreshNow(ctx); err != nil {
		c.log.Warn("refresh after mutation failed", "resource", resource, "err", err)
	}
}
