package api

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/germanoeich/dockctl/internal/actions"
	"github.com/germanoeich/dockctl/internal/console"
	"github.com/germanoeich/dockctl/internal/core"
	"github.com/germanoeich/dockctl/internal/progress"
)

// Service is the console surface the handlers use.
type Service interface {
	Containers() []core.ContainerSummary
	Images() []core.ImageSummary
	Networks() []core.NetworkSummary
	Volumes() []core.VolumeSummary
	Status() map[string]console.ResourceStatus

	Do(ctx context.Context, name string, action actions.Action) error
	ActionStatus(name string) actions.ActionState
	AvailableActions(name string) []actions.Action
	Logs(name string, since uint64, q core.LineQuery) ([]core.LogLine, error)

	CreateContainer(ctx context.Context, image, portMapping string) error
	PullImage(ctx context.Context, image string, onUpdate func(progress.State)) (progress.State, error)
	RemoveImage(ctx context.Context, image string) error
	CreateNetwork(ctx context.Context, name, driver string) error
	RemoveNetwork(ctx context.Context, networkID string) error
	Connect(ctx context.Context, containerID, networkID string) error
	Disconnect(ctx context.Context, containerID, networkID string) error
	NetworkContainers(ctx context.Context, networkID string) ([]core.NetworkMembership, error)
	CreateVolume(ctx context.Context, name string) error
	RemoveVolume(ctx context.Context, name string) error
}

// Handler serves the /api/v1 routes.
type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Health(c *fiber.Ctx) error {
	resources := h.svc.Status()
	status := "ok"
	for _, r := range resources {
		if r.LastError != "" {
			status = "degraded"
			break
		}
	}
	return c.JSON(fiber.Map{"status": status, "resources": resources})
}

func (h *Handler) ListContainers(c *fiber.Ctx) error {
	return c.JSON(h.svc.Containers())
}

type CreateContainerRequest struct {
	Image       string `json:"image"`
	PortMapping string `json:"portMapping"`
}

func (h *Handler) CreateContainer(c *fiber.Ctx) error {
	var req CreateContainerRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.svc.CreateContainer(c.UserContext(), req.Image, req.PortMapping); err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"image": req.Image})
}

func (h *Handler) ContainerAction(c *fiber.Ctx) error {
	name := c.Params("name")
	action, err := actions.ParseAction(c.Params("action"))
	if err != nil {
		return fail(c, err)
	}
	if err := h.svc.Do(c.UserContext(), name, action); err != nil {
		return fail(c, err)
	}
	return c.JSON(h.svc.ActionStatus(name))
}

func (h *Handler) ContainerActions(c *fiber.Ctx) error {
	name := c.Params("name")
	available := h.svc.AvailableActions(name)
	if available == nil {
		available = []actions.Action{}
	}
	return c.JSON(fiber.Map{
		"state":     h.svc.ActionStatus(name),
		"available": available,
	})
}

func (h *Handler) ContainerLogs(c *fiber.Ctx) error {
	var since uint64
	if s := c.Query("since"); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return badRequest(c, "since must be a non-negative integer")
		}
		since = v
	}
	q, err := parseLineQuery(c)
	if err != nil {
		return fail(c, err)
	}
	lines, err := h.svc.Logs(c.Params("name"), since, q)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(lines)
}

func (h *Handler) ListImages(c *fiber.Ctx) error {
	return c.JSON(h.svc.Images())
}

type PullImageRequest struct {
	Image string `json:"image"`
}

type pullResponse struct {
	Image   string             `json:"image"`
	Status  string             `json:"status"`
	Percent map[string]float64 `json:"percent"`
	Overall float64            `json:"overall"`
}

// PullImage blocks until the pull has finished and returns the final
// per-layer progress.
func (h *Handler) PullImage(c *fiber.Ctx) error {
	var req PullImageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	st, err := h.svc.PullImage(c.UserContext(), req.Image, nil)
	if err != nil {
		return fail(c, err)
	}
	percent := st.Percent
	if percent == nil {
		percent = map[string]float64{}
	}
	return c.JSON(pullResponse{Image: req.Image, Status: st.Status, Percent: percent, Overall: st.Overall()})
}

func (h *Handler) RemoveImage(c *fiber.Ctx) error {
	if err := h.svc.RemoveImage(c.UserContext(), c.Query("image")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) ListNetworks(c *fiber.Ctx) error {
	return c.JSON(h.svc.Networks())
}

type CreateNetworkRequest struct {
	Name   string `json:"name"`
	Driver string `json:"driver"`
}

func (h *Handler) CreateNetwork(c *fiber.Ctx) error {
	var req CreateNetworkRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.svc.CreateNetwork(c.UserContext(), req.Name, req.Driver); err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"name": req.Name})
}

func (h *Handler) RemoveNetwork(c *fiber.Ctx) error {
	if err := h.svc.RemoveNetwork(c.UserContext(), c.Params("id")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) NetworkContainers(c *fiber.Ctx) error {
	members, err := h.svc.NetworkContainers(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(members)
}

func (h *Handler) ConnectContainer(c *fiber.Ctx) error {
	if err := h.svc.Connect(c.UserContext(), c.Params("container"), c.Params("id")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) DisconnectContainer(c *fiber.Ctx) error {
	if err := h.svc.Disconnect(c.UserContext(), c.Params("container"), c.Params("id")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) ListVolumes(c *fiber.Ctx) error {
	return c.JSON(h.svc.Volumes())
}

type CreateVolumeRequest struct {
	Name string `json:"name"`
}

func (h *Handler) CreateVolume(c *fiber.Ctx) error {
	var req CreateVolumeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.svc.CreateVolume(c.UserContext(), req.Name); err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"name": req.Name})
}

func (h *Handler) RemoveVolume(c *fiber.Ctx) error {
	if err := h.svc.RemoveVolume(c.UserContext(), c.Params("name")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// parseLineQuery reads ?q= and ?exclude= (both repeatable) and ?level=.
func parseLineQuery(c *fiber.Ctx) (core.LineQuery, error) {
	var q core.LineQuery
	args := c.Context().QueryArgs()
	for _, v := range args.PeekMulti("q") {
		m, err := core.NewMatcher(string(v))
		if err != nil {
			return q, err
		}
		q.Include = append(q.Include, m)
	}
	for _, v := range args.PeekMulti("exclude") {
		m, err := core.NewMatcher(string(v))
		if err != nil {
			return q, err
		}
		q.Exclude = append(q.Exclude, m)
	}
	if lvl := c.Query("level"); lvl != "" {
		sev, err := core.ParseSeverity(lvl)
		if err != nil {
			return q, err
		}
		q.MinLevel = sev
	}
	return q, nil
}
