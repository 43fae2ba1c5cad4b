package actions

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/germanoeich/dockctl/internal/core"
	"github.com/germanoeich/dockctl/internal/gateway"
	"github.com/germanoeich/dockctl/internal/observability"
)

// Phase is where a container's most recent action stands.
type Phase string

const (
	Idle      Phase = "idle"
	Pending   Phase = "pending"
	Succeeded Phase = "succeeded"
	Failed    Phase = "failed"
)

// ActionState is the tracked outcome of the last action on one container.
type ActionState struct {
	Phase     Phase  `json:"phase"`
	Action    Action `json:"action,omitempty"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// Executor runs container lifecycle commands.
type Executor interface {
	ContainerAction(ctx context.Context, cmd gateway.Command, containerName string) error
}

// Refresher re-fetches the container collection.
type Refresher interface {
	RefreshNow(ctx context.Context) error
}

// SnapshotFunc returns the latest container snapshot.
type SnapshotFunc func() ([]core.ContainerSummary, bool)

// Coordinator allows one pending action per container and rejects actions
// that are illegal for the container's last observed state without calling
// the backend.
type Coordinator struct {
	exec     Executor
	refresh  Refresher
	snapshot SnapshotFunc
	log      *slog.Logger

	mu       sync.Mutex
	states   map[string]ActionState
	lastSeen map[string]core.ContainerState
}

// NewCoordinator creates a Coordinator. A nil logger uses slog.Default().
func NewCoordinator(exec Executor, refresh Refresher, snapshot SnapshotFunc, log *slog.Logger) *Coordinator {
	return &Coordinator{
		exec:     exec,
		refresh:  refresh,
		snapshot: snapshot,
		log:      observability.OrDefault(log),
		states:   make(map[string]ActionState),
		lastSeen: make(map[string]core.ContainerState),
	}
}

// Do runs action on the named container. On backend success the container
// collection is refreshed before Do returns, then the action is marked
// succeeded. Local rejections are PreconditionFailed (illegal for the current
// state or unknown container) or ActionInProgress.
func (c *Coordinator) Do(ctx context.Context, name string, action Action) error {
	if _, ok := commandFor[action]; !ok {
		return core.Errorf(core.ValidationFailed, string(action), "unknown action %q", action)
	}
	op := string(action.Command())

	c.mu.Lock()
	if st := c.states[name]; st.Phase == Pending {
		c.mu.Unlock()
		observability.RecordAction(string(action), string(core.ActionInProgress))
		return core.Errorf(core.ActionInProgress, op, "%s is still pending on %s", st.Action, name)
	}

	current, err := c.stateOf(name)
	if err != nil {
		c.mu.Unlock()
		observability.RecordAction(string(action), string(core.PreconditionFailed))
		return core.Wrap(core.PreconditionFailed, op, err)
	}
	if !Legal(action, current) {
		c.mu.Unlock()
		observability.RecordAction(string(action), string(core.PreconditionFailed))
		return core.Errorf(core.PreconditionFailed, op, "cannot %s container %s while it is %s", action, name, current)
	}

	reqID := uuid.NewString()
	c.states[name] = ActionState{Phase: Pending, Action: action, RequestID: reqID}
	c.mu.Unlock()

	log := c.log.With("container", name, "action", action, "request", reqID)
	log.Info("action dispatched", "state", current)

	if err := c.exec.ContainerAction(ctx, action.Command(), name); err != nil {
		c.mu.Lock()
		c.states[name] = ActionState{Phase: Failed, Action: action, Reason: err.Error(), RequestID: reqID}
		c.mu.Unlock()
		observability.RecordAction(string(action), string(core.KindOf(err)))
		log.Warn("action failed", "err", err)
		return err
	}

	if err := c.refresh.RefreshNow(ctx); err != nil {
		log.Warn("refresh after action failed", "err", err)
	}

	c.mu.Lock()
	c.states[name] = ActionState{Phase: Succeeded, Action: action, RequestID: reqID}
	c.mu.Unlock()
	observability.RecordAction(string(action), "ok")
	log.Info("action succeeded")
	return nil
}

// stateOf looks name up in the latest snapshot. Callers hold c.mu.
func (c *Coordinator) stateOf(name string) (core.ContainerState, error) {
	snap, ok := c.snapshot()
	if !ok {
		return "", core.Errorf(core.PreconditionFailed, "", "no container snapshot yet")
	}
	ctr, ok := core.IndexContainers(snap)[name]
	if !ok {
		return "", core.Errorf(core.PreconditionFailed, "", "container %s not found", name)
	}
	return ctr.State, nil
}

// Status returns the tracked state for name, Idle if there is none.
func (c *Coordinator) Status(name string) ActionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.states[name]; ok {
		return st
	}
	return ActionState{Phase: Idle}
}

// Available returns the actions currently legal for name, or nil if the
// container is unknown or has an action pending.
func (c *Coordinator) Available(name string) []Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.states[name].Phase == Pending {
		return nil
	}
	s, err := c.stateOf(name)
	if err != nil {
		return nil
	}
	return Available(s)
}

// Observe is the container poller's delivery hook. Settled entries return to
// Idle when their container's state changes; entries for containers missing
// from the snapshot are dropped. Pending entries are left alone.
func (c *Coordinator) Observe(snapshot []core.ContainerSummary) {
	idx := core.IndexContainers(snapshot)

	c.mu.Lock()
	defer c.mu.Unlock()
	for name, st := range c.states {
		if st.Phase == Pending {
			continue
		}
		ctr, ok := idx[name]
		if !ok {
			delete(c.states, name)
			continue
		}
		if prev, seen := c.lastSeen[name]; seen && prev != ctr.State {
			delete(c.states, name)
		}
	}

	seen := make(map[string]core.ContainerState, len(idx))
	for name, ctr := range idx {
		seen[name] = ctr.State
	}
	c.lastSeen = seen
}
