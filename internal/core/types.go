package core

import "strings"

// ContainerState is the coarse lifecycle state the console reasons about.
type ContainerState string

const (
	StateRunning ContainerState = "running"
	StateExited  ContainerState = "exited"
	StatePaused  ContainerState = "paused"
	StateUnknown ContainerState = "unknown"
)

// ParseContainerState folds the Docker state vocabulary onto ContainerState.
func ParseContainerState(s string) ContainerState {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "running":
		return StateRunning
	case "exited", "created", "dead":
		return StateExited
	case "paused":
		return StatePaused
	default:
		return StateUnknown
	}
}

// ContainerSummary is one row of a container poll snapshot.
type ContainerSummary struct {
	Name   *string        `json:"name"` // nil when the runtime reports no name
	Status string         `json:"status"`
	State  ContainerState `json:"state"`
	Ports  []string       `json:"ports"`
}

// Key returns the identity key, or "" for unnamed containers.
func (c ContainerSummary) Key() string {
	if c.Name == nil {
		return ""
	}
	return *c.Name
}

// ImageSummary is one row of an image poll snapshot.
type ImageSummary struct {
	RepoTag string `json:"repo_tag"`
	Size    int64  `json:"size"`
}

// NetworkSummary is one row of a network poll snapshot. Internal and EnableIPv6
// are nil when the runtime did not report them.
type NetworkSummary struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Driver     string            `json:"driver"`
	Scope      string            `json:"scope"`
	Internal   *bool             `json:"internal"`
	EnableIPv6 *bool             `json:"enable_ipv6"`
	Labels     map[string]string `json:"labels,omitempty"`
}

// VolumeSummary is one row of a volume poll snapshot.
type VolumeSummary struct {
	Name       string            `json:"name"`
	Driver     string            `json:"driver"`
	Mountpoint string            `json:"mountpoint,omitempty"`
	Scope      string            `json:"scope,omitempty"`
	Labels     map[string]string `json:"labels,omitempty"`
	Status     map[string]string `json:"status,omitempty"`
}

// NetworkMembership links a container to the network it was listed for.
type NetworkMembership struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	NetworkID string `json:"network_id"`
}

// ProgressEvent is one partial progress report from a long-running pull.
// Current and Total are nil when the report carried no byte counters.
type ProgressEvent struct {
	ID      string
	Status  string
	Current *int64
	Total   *int64
}

// IndexContainers maps a snapshot by container name. Unnamed containers are
// skipped. On a duplicate key the later entry wins.
func IndexContainers(snapshot []ContainerSummary) map[string]ContainerSummary {
	idx := make(map[string]ContainerSummary, len(snapshot))
	for _, c := range snapshot {
		if k := c.Key(); k != "" {
			idx[k] = c
		}
	}
	return idx
}
