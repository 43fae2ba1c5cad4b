// Package api exposes the console over HTTP.
package api

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/germanoeich/dockctl/internal/observability"
)

// NewApp builds the fiber app with every route registered.
func NewApp(svc Service, log *slog.Logger) *fiber.App {
	log = observability.OrDefault(log)

	app := fiber.New(fiber.Config{
		AppName:               "dockctl",
		DisableStartupMessage: true,
		// Route params become map keys in long-lived console state.
		Immutable: true,
		// Pulls block until the image is fully downloaded.
		WriteTimeout: 30 * time.Minute,
	})
	app.Use(recover.New())
	app.Use(requestLogger(log))

	h := NewHandler(svc)

	app.Get("/healthz", h.Health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(observability.Registry, promhttp.HandlerOpts{})))

	v1 := app.Group("/api").Group("/v1")

	containers := v1.Group("/containers")
	containers.Get("/", h.ListContainers)
	containers.Post("/", h.CreateContainer)
	containers.Get("/:name/actions", h.ContainerActions)
	containers.Get("/:name/logs", h.ContainerLogs)
	containers.Post("/:name/:action", h.ContainerAction)

	images := v1.Group("/images")
	images.Get("/", h.ListImages)
	images.Post("/pull", h.PullImage)
	images.Delete("/", h.RemoveImage)

	networks := v1.Group("/networks")
	networks.Get("/", h.ListNetworks)
	networks.Post("/", h.CreateNetwork)
	networks.Delete("/:id", h.RemoveNetwork)
	networks.Get("/:id/containers", h.NetworkContainers)
	networks.Post("/:id/containers/:container", h.ConnectContainer)
	networks.Delete("/:id/containers/:container", h.DisconnectContainer)

	volumes := v1.Group("/volumes")
	volumes.Get("/", h.ListVolumes)
	volumes.Post("/", h.CreateVolume)
	volumes.Delete("/:name", h.RemoveVolume)

	return app
}

func requestLogger(log *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		attrs := []any{
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"elapsed", time.Since(start),
		}
		switch {
		case err != nil:
			log.Error("request failed", append(attrs, "err", err)...)
		case status >= fiber.StatusInternalServerError:
			log.Warn("request", attrs...)
		default:
			log.Debug("request", attrs...)
		}
		return err
	}
}
