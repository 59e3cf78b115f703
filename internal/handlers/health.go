package handlers

import "github.com/gofiber/fiber/v2"

// HealthHandler handles health check requests
type HealthHandler struct {
	Version string
	Storage string
	Dedupe  string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version, storage, dedupe string) *HealthHandler {
	return &HealthHandler{Version: version, Storage: storage, Dedupe: dedupe}
}

// Check returns the health status of the service
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "OK",
		"service": "ShopChat Engine",
		"version": h.Version,
		"storage": h.Storage,
		"dedupe":  h.Dedupe,
	})
}
