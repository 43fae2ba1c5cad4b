package gateway

import (
	"context"
	"errors"
	"strings"

	"github.com/germanoeich/dockctl/internal/core"
)

// Command is a backend command name. The set is closed: see commands.
type Command string

const (
	ListContainers        Command = "list_containers"
	CreateContainer       Command = "create_container"
	StartContainer        Command = "start_container"
	StopContainer         Command = "stop_container"
	PauseContainer        Command = "pause_container"
	UnpauseContainer      Command = "unpause_container"
	KillContainer         Command = "kill_container"
	DeleteContainer       Command = "delete_container"
	EmitLogs              Command = "emit_logs"
	ListImages            Command = "list_images"
	PullImage             Command = "pull_image"
	RemoveImage           Command = "remove_image"
	ListNetworks          Command = "list_networks"
	CreateNetwork         Command = "create_network"
	RemoveNetwork         Command = "remove_network"
	ConnectNetwork        Command = "connect_container_to_network"
	DisconnectNetwork     Command = "disconnect_container_from_network"
	ListNetworkContainers Command = "list_network_containers"
	ListVolumes           Command = "list_volumes"
	CreateVolume          Command = "create_volume"
	RemoveVolume          Command = "remove_volume"
)

// ErrUnknownCommand is returned for names outside the command set.
var ErrUnknownCommand = errors.New("unknown command")

// Params is the union of every command's parameters. Each command reads only
// the fields it declares as required (plus PortMapping and Driver, which are
// optional).
type Params struct {
	ContainerName string `json:"containerName,omitempty"`
	Image         string `json:"image,omitempty"`
	PortMapping   string `json:"portMapping,omitempty"`
	ImageName     string `json:"imageName,omitempty"`
	Name          string `json:"name,omitempty"`
	Driver        string `json:"driver,omitempty"`
	NetworkID     string `json:"networkId,omitempty"`
	ContainerID   string `json:"containerId,omitempty"`
	VolumeName    string `json:"volumeName,omitempty"`
}

type field struct {
	name string
	get  func(Params) string
}

var (
	fContainerName = field{"containerName", func(p Params) string { return p.ContainerName }}
	fImage         = field{"image", func(p Params) string { return p.Image }}
	fImageName     = field{"imageName", func(p Params) string { return p.ImageName }}
	fName          = field{"name", func(p Params) string { return p.Name }}
	fNetworkID     = field{"networkId", func(p Params) string { return p.NetworkID }}
	fContainerID   = field{"containerId", func(p Params) string { return p.ContainerID }}
	fVolumeName    = field{"volumeName", func(p Params) string { return p.VolumeName }}
)

type handler func(ctx context.Context, g *Gateway, p Params) (any, error)

type commandSpec struct {
	required []field
	run      handler
}

// commands is the closed command table.
var commands = map[Command]commandSpec{
	ListContainers: {run: func(ctx context.Context, g *Gateway, _ Params) (any, error) {
		return g.client.ListContainers(ctx)
	}},
	CreateContainer: {required: []field{fImage}, run: func(ctx context.Context, g *Gateway, p Params) (any, error) {
		ports, err := core.ParsePortMapping(p.PortMapping)
		if err != nil {
			return nil, err
		}
		return nil, g.client.CreateContainer(ctx, p.Image, ports)
	}},
	StartContainer: {required: []field{fContainerName}, run: func(ctx context.Context, g *Gateway, p Params) (any, error) {
		return nil, g.client.StartContainer(ctx, p.ContainerName)
	}},
	StopContainer: {required: []field{fContainerName}, run: func(ctx context.Context, g *Gateway, p Params) (any, error) {
		return nil, g.client.StopContainer(ctx, p.ContainerName)
	}},
	PauseContainer: {required: []field{fContainerName}, run: func(ctx context.Context, g *Gateway, p Params) (any, error) {
		return nil, g.client.PauseContainer(ctx, p.ContainerName)
	}},
	UnpauseContainer: {required: []field{fContainerName}, run: func(ctx context.Context, g *Gateway, p Params) (any, error) {
		return nil, g.client.UnpauseContainer(ctx, p.ContainerName)
	}},
	KillContainer: {required: []field{fContainerName}, run: func(ctx context.Context, g *Gateway, p Params) (any, error) {
		return nil, g.client.KillContainer(ctx, p.ContainerName)
	}},
	DeleteContainer: {required: []field{fContainerName}, run: func(ctx context.Context, g *Gateway, p Params) (any, error) {
		return nil, g.client.RemoveContainer(ctx, p.ContainerName)
	}},
	EmitLogs: {required: []field{fContainerName}, run: func(ctx context.Context, g *Gateway, p Params) (any, error) {
		return nil, g.emitLogs(ctx, p.ContainerName)
	}},
	ListImages: {run: func(ctx context.Context, g *Gateway, _ Params) (any, error) {
		return g.client.ListImages(ctx)
	}},
	PullImage: {required: []field{fImageName}, run: func(ctx context.Context, g *Gateway, p Params) (any, error) {
		return nil, g.pullImage(ctx, p.ImageName)
	}},
	RemoveImage: {required: []field{fImage}, run: func(ctx context.Context, g *Gateway, p Params) (any, error) {
		return nil, g.client.RemoveImage(ctx, p.Image)
	}},
	ListNetworks: {run: func(ctx context.Context, g *Gateway, _ Params) (any, error) {
		return g.client.ListNetworks(ctx)
	}},
	CreateNetwork: {required: []field{fName}, run: func(ctx context.Context, g *Gateway, p Params) (any, error) {
		return nil, g.client.CreateNetwork(ctx, p.Name, p.Driver)
	}},
	RemoveNetwork: {required: []field{fNetworkID}, run: func(ctx context.Context, g *Gateway, p Params) (any, error) {
		return nil, g.client.RemoveNetwork(ctx, p.NetworkID)
	}},
	ConnectNetwork: {required: []field{fContainerID, fNetworkID}, run: func(ctx context.Context, g *Gateway, p Params) (any, error) {
		return nil, g.client.ConnectNetwork(ctx, p.ContainerID, p.NetworkID)
	}},
	DisconnectNetwork: {required: []field{fContainerID, fNetworkID}, run: func(ctx context.Context, g *Gateway, p Params) (any, error) {
		return nil, g.client.DisconnectNetwork(ctx, p.ContainerID, p.NetworkID)
	}},
	ListNetworkContainers: {required: []field{fNetworkID}, run: func(ctx context.Context, g *Gateway, p Params) (any, error) {
		return g.client.NetworkContainers(ctx, p.NetworkID)
	}},
	ListVolumes: {run: func(ctx context.Context, g *Gateway, _ Params) (any, error) {
		return g.client.ListVolumes(ctx)
	}},
	CreateVolume: {required: []field{fVolumeName}, run: func(ctx context.Context, g *Gateway, p Params) (any, error) {
		return nil, g.client.CreateVolume(ctx, p.VolumeName)
	}},
	RemoveVolume: {required: []field{fVolumeName}, run: func(ctx context.Context, g *Gateway, p Params) (any, error) {
		return nil, g.client.RemoveVolume(ctx, p.VolumeName)
	}},
}

// Commands returns every known command name.
func Commands() []Command {
	out := make([]Command, 0, len(commands))
	for c := range commands {
		out = append(out, c)
	}
	return out
}

// validate checks required fields and the port mapping before anything is sent.
func (s commandSpec) validate(cmd Command, p Params) error {
	var missing []string
	for _, f := range s.required {
		if strings.TrimSpace(f.get(p)) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return core.Errorf(core.ValidationFailed, string(cmd), "missing required parameter(s): %s", strings.Join(missing, ", "))
	}
	if cmd == CreateContainer {
		if err := core.ValidatePortMapping(p.PortMapping); err != nil {
			var ce *core.Error
			if errors.As(err, &ce) {
				tagged := *ce
				tagged.Op = string(cmd)
				return &tagged
			}
			return err
		}
	}
	return nil
}
