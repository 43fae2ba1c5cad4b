package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/germanoeich/dockctl/internal/core"
)

// StatusFor maps an error's Kind to an HTTP status.
func StatusFor(err error) int {
	switch core.KindOf(err) {
	case core.ValidationFailed:
		return fiber.StatusBadRequest
	case core.PreconditionFailed, core.ActionInProgress:
		return fiber.StatusConflict
	case core.BackendRejected:
		return fiber.StatusUnprocessableEntity
	case core.TransportFailure:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func fail(c *fiber.Ctx, err error) error {
	msg := err.Error()
	var ce *core.Error
	if errors.As(err, &ce) && ce.Message != "" {
		msg = ce.Message
	}
	body := fiber.Map{"error": msg}
	if kind := core.KindOf(err); kind != "" {
		body["kind"] = kind
	}
	return c.Status(StatusFor(err)).JSON(body)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
		"kind":  core.ValidationFailed,
	})
}
