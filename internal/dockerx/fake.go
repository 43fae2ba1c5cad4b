package dockerx

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/docker/docker/errdefs"

	"github.com/germanoeich/dockctl/internal/core"
)

// FakeClient implements Client in memory for tests. Lifecycle calls mutate the
// stored container state the way the runtime would.
type FakeClient struct {
	mu          sync.Mutex
	containers  []core.ContainerSummary
	images      []core.ImageSummary
	networks    []core.NetworkSummary
	volumes     []core.VolumeSummary
	memberships map[string][]core.NetworkMembership // networkID -> members
	logStreams  map[string][]string                 // container -> lines
	pullStreams map[string][]string                 // image -> raw JSON messages
	errors      map[string]error                    // method -> error to return
	gates       map[string]chan struct{}            // method -> blocks until closed
	calls       map[string]int
}

// NewFakeClient creates an empty fake runtime.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		memberships: make(map[string][]core.NetworkMembership),
		logStreams:  make(map[string][]string),
		pullStreams: make(map[string][]string),
		errors:      make(map[string]error),
		gates:       make(map[string]chan struct{}),
		calls:       make(map[string]int),
	}
}

// AddContainer adds a container to the fake runtime.
func (f *FakeClient) AddContainer(name string, state core.ContainerState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := name
	f.containers = append(f.containers, core.ContainerSummary{
		Name:   &n,
		Status: string(state),
		State:  state,
	})
}

// AddImage adds an image to the fake runtime.
func (f *FakeClient) AddImage(repoTag string, size int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images = append(f.images, core.ImageSummary{RepoTag: repoTag, Size: size})
}

// AddNetwork adds a network to the fake runtime.
func (f *FakeClient) AddNetwork(n core.NetworkSummary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.networks = append(f.networks, n)
}

// AddVolume adds a volume to the fake runtime.
func (f *FakeClient) AddVolume(v core.VolumeSummary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumes = append(f.volumes, v)
}

// AddLogLines adds log lines for a container.
func (f *FakeClient) AddLogLines(name string, lines []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logStreams[name] = append(f.logStreams[name], lines...)
}

// SetPullStream sets the raw JSON progress messages a pull of image produces.
func (f *FakeClient) SetPullStream(image string, messages []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pullStreams[image] = messages
}

// SetError sets an error to return for a specific method. A nil err clears it.
func (f *FakeClient) SetError(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errors, method)
		return
	}
	f.errors[method] = err
}

// Gate makes calls to method block until the returned release func is called
// or the call's context is done.
func (f *FakeClient) Gate(method string) (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[method] = ch
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if f.gates[method] == ch {
				delete(f.gates, method)
			}
			f.mu.Unlock()
			close(ch)
		})
	}
}

// Calls returns how many times method was invoked.
func (f *FakeClient) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// State returns the stored state of a container.
func (f *FakeClient) State(name string) (core.ContainerState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := f.indexOf(name); i >= 0 {
		return f.containers[i].State, true
	}
	return "", false
}

// enter records the call, waits on a gate if one is set and returns the
// scripted error for method.
func (f *FakeClient) enter(ctx context.Context, method string) error {
	f.mu.Lock()
	f.calls[method]++
	gate := f.gates[method]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errors[method]
}

func (f *FakeClient) indexOf(name string) int {
	for i, c := range f.containers {
		if c.Key() == name {
			return i
		}
	}
	return -1
}

func (f *FakeClient) setState(ctx context.Context, method, name string, state core.ContainerState) error {
	if err := f.enter(ctx, method); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.indexOf(name)
	if i < 0 {
		return errdefs.NotFound(fmt.Errorf("No such container: %s", name))
	}
	f.containers[i].State = state
	f.containers[i].Status = string(state)
	return nil
}

func (f *FakeClient) ListContainers(ctx context.Context) ([]core.ContainerSummary, error) {
	if err := f.enter(ctx, "ListContainers"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([]core.ContainerSummary, len(f.containers))
	copy(result, f.containers)
	return result, nil
}

func (f *FakeClient) CreateContainer(ctx context.Context, image string, ports *core.PortMapping) error {
	if err := f.enter(ctx, "CreateContainer"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	name := fmt.Sprintf("%s-%d", strings.NewReplacer(":", "-", "/", "-").Replace(image), len(f.containers)+1)
	var published []string
	if ports != nil {
		published = []string{fmt.Sprintf("0.0.0.0:%d->%d/tcp", ports.HostPort, ports.ContainerPort)}
	}
	f.containers = append(f.containers, core.ContainerSummary{
		Name:   &name,
		Status: string(core.StateRunning),
		State:  core.StateRunning,
		Ports:  published,
	})
	return nil
}

func (f *FakeClient) StartContainer(ctx context.Context, name string) error {
	return f.setState(ctx, "StartContainer", name, core.StateRunning)
}

func (f *FakeClient) StopContainer(ctx context.Context, name string) error {
	return f.setState(ctx, "StopContainer", name, core.StateExited)
}

func (f *FakeClient) PauseContainer(ctx context.Context, name string) error {
	return f.setState(ctx, "PauseContainer", name, core.StatePaused)
}

func (f *FakeClient) UnpauseContainer(ctx context.Context, name string) error {
	return f.setState(ctx, "UnpauseContainer", name, core.StateRunning)
}

func (f *FakeClient) KillContainer(ctx context.Context, name string) error {
	return f.setState(ctx, "KillContainer", name, core.StateExited)
}

func (f *FakeClient) RemoveContainer(ctx context.Context, name string) error {
	if err := f.enter(ctx, "RemoveContainer"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.indexOf(name)
	if i < 0 {
		return errdefs.NotFound(fmt.Errorf("No such container: %s", name))
	}
	f.containers = append(f.containers[:i], f.containers[i+1:]...)
	for id, members := range f.memberships {
		kept := members[:0]
		for _, m := range members {
			if m.ID != name {
				kept = append(kept, m)
			}
		}
		f.memberships[id] = kept
	}
	return nil
}

// StreamLogs returns the stored lines for the container and then EOF.
func (f *FakeClient) StreamLogs(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := f.enter(ctx, "StreamLogs"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	lines, ok := f.logStreams[name]
	f.mu.Unlock()
	if !ok {
		return nil, errdefs.NotFound(fmt.Errorf("No such container: %s", name))
	}
	return linesReader(ctx, lines), nil
}

func (f *FakeClient) ListImages(ctx context.Context) ([]core.ImageSummary, error) {
	if err := f.enter(ctx, "ListImages"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([]core.ImageSummary, len(f.images))
	copy(result, f.images)
	return result, nil
}

// PullImage streams the scripted messages; on completion the image is listed.
func (f *FakeClient) PullImage(ctx context.Context, image string) (io.ReadCloser, error) {
	if err := f.enter(ctx, "PullImage"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	msgs := f.pullStreams[image]
	f.images = append(f.images, core.ImageSummary{RepoTag: image})
	f.mu.Unlock()
	return linesReader(ctx, msgs), nil
}

func (f *FakeClient) RemoveImage(ctx context.Context, image string) error {
	if err := f.enter(ctx, "RemoveImage"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, img := range f.images {
		if img.RepoTag == image {
			f.images = append(f.images[:i], f.images[i+1:]...)
			return nil
		}
	}
	return errdefs.NotFound(fmt.Errorf("No such image: %s", image))
}

func (f *FakeClient) ListNetworks(ctx context.Context) ([]core.NetworkSummary, error) {
	if err := f.enter(ctx, "ListNetworks"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([]core.NetworkSummary, len(f.networks))
	copy(result, f.networks)
	return result, nil
}

func (f *FakeClient) CreateNetwork(ctx context.Context, name, driver string) error {
	if err := f.enter(ctx, "CreateNetwork"); err != nil {
		return err
	}
	if driver == "" {
		driver = defaultNetworkDriver
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.networks {
		if n.Name == name {
			return errdefs.Conflict(fmt.Errorf("network with name %s already exists", name))
		}
	}
	f.networks = append(f.networks, core.NetworkSummary{
		ID:     "net-" + name,
		Name:   name,
		Driver: driver,
		Scope:  "local",
	})
	return nil
}

func (f *FakeClient) RemoveNetwork(ctx context.Context, networkID string) error {
	if err := f.enter(ctx, "RemoveNetwork"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.memberships[networkID]) > 0 {
		return errdefs.Forbidden(fmt.Errorf("network %s is in use", networkID))
	}
	for i, n := range f.networks {
		if n.ID == networkID {
			f.networks = append(f.networks[:i], f.networks[i+1:]...)
			return nil
		}
	}
	return errdefs.NotFound(fmt.Errorf("network %s not found", networkID))
}

func (f *FakeClient) ConnectNetwork(ctx context.Context, containerID, networkID string) error {
	if err := f.enter(ctx, "ConnectNetwork"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memberships[networkID] = append(f.memberships[networkID], core.NetworkMembership{
		ID:        containerID,
		Name:      containerID,
		NetworkID: networkID,
	})
	return nil
}

func (f *FakeClient) DisconnectNetwork(ctx context.Context, containerID, networkID string) error {
	if err := f.enter(ctx, "DisconnectNetwork"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	members := f.memberships[networkID]
	for i, m := range members {
		if m.ID == containerID {
			f.memberships[networkID] = append(members[:i], members[i+1:]...)
			return nil
		}
	}
	return errdefs.NotFound(fmt.Errorf("container %s is not connected to network %s", containerID, networkID))
}

func (f *FakeClient) NetworkContainers(ctx context.Context, networkID string) ([]core.NetworkMembership, error) {
	if err := f.enter(ctx, "NetworkContainers"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	members := f.memberships[networkID]
	result := make([]core.NetworkMembership, len(members))
	copy(result, members)
	return result, nil
}

func (f *FakeClient) ListVolumes(ctx context.Context) ([]core.VolumeSummary, error) {
	if err := f.enter(ctx, "ListVolumes"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([]core.VolumeSummary, len(f.volumes))
	copy(result, f.volumes)
	return result, nil
}

func (f *FakeClient) CreateVolume(ctx context.Context, name string) error {
	if err := f.enter(ctx, "CreateVolume"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumes = append(f.volumes, core.VolumeSummary{Name: name, Driver: "local", Scope: "local"})
	return nil
}

func (f *FakeClient) RemoveVolume(ctx context.Context, name string) error {
	if err := f.enter(ctx, "RemoveVolume"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, v := range f.volumes {
		if v.Name == name {
			f.volumes = append(f.volumes[:i], f.volumes[i+1:]...)
			return nil
		}
	}
	return errdefs.NotFound(fmt.Errorf("No such volume: %s", name))
}

// linesReader writes each line followed by a newline into a pipe and closes it.
func linesReader(ctx context.Context, lines []string) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		defer pw.Close()
		for _, line := range lines {
			select {
			case <-ctx.Done():
				pw.CloseWithError(ctx.Err())
				return
			default:
			}
			if _, err := io.WriteString(pw, line+"\n"); err != nil {
				return
			}
		}
	}()
	return pr
}

var _ Client = (*FakeClient)(nil)
