// Package actions gates container lifecycle actions on the latest observed
// state and tracks the outcome of each one.
package actions

import (
	"strings"

	"github.com/germanoeich/dockctl/internal/core"
	"github.com/germanoeich/dockctl/internal/gateway"
)

// Action is a user-initiated lifecycle operation on one container.
type Action string

const (
	Start   Action = "start"
	Stop    Action = "stop"
	Pause   Action = "pause"
	Unpause Action = "unpause"
	Kill    Action = "kill"
	Delete  Action = "delete"
)

// All lists every action in display order.
var All = []Action{Start, Stop, Pause, Unpause, Kill, Delete}

var commandFor = map[Action]gateway.Command{
	Start:   gateway.StartContainer,
	Stop:    gateway.StopContainer,
	Pause:   gateway.PauseContainer,
	Unpause: gateway.UnpauseContainer,
	Kill:    gateway.KillContainer,
	Delete:  gateway.DeleteContainer,
}

// ParseAction resolves a case-insensitive action name.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := commandFor[a]; !ok {
		return "", core.Errorf(core.ValidationFailed, "action", "unknown action %q", s)
	}
	return a, nil
}

// Command returns the gateway command that performs a.
func (a Action) Command() gateway.Command {
	return commandFor[a]
}

// Legal reports whether a may be invoked on a container in state s.
func Legal(a Action, s core.ContainerState) bool {
	switch a {
	case Start:
		return s != core.StateRunning && s != core.StatePaused
	case Stop, Pause, Kill:
		return s == core.StateRunning
	case Unpause:
		return s == core.StatePaused
	case Delete:
		return s != core.StateRunning
	default:
		return false
	}
}

// Available returns the actions legal in state s, in display order.
func Available(s core.ContainerState) []Action {
	var out []Action
	for _, a := range All {
		if Legal(a, s) {
			out = append(out, a)
		}
	}
	return out
}
