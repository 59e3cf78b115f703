package routes

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/shopchat-labs/shopchat-backend/internal/handlers"
	"github.com/shopchat-labs/shopchat-backend/internal/middleware"
)

// Handlers bundles everything the route table needs.
type Handlers struct {
	Webhook *handlers.WebhookHandler
	Flow    *handlers.FlowHandler
	Health  *handlers.HealthHandler
}

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, h Handlers, appSecret string, logger *zap.Logger) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "ShopChat Conversational Commerce Engine",
			"endpoints": fiber.Map{
				"health":       "/health",
				"webhook":      "/webhook/whatsapp",
				"flow_channel": "/webhook/flow",
			},
		})
	})

	app.Get("/health", h.Health.Check)

	webhooks := app.Group("/webhook")
	webhooks.Get("/whatsapp", h.Webhook.Verify)
	webhooks.Post("/whatsapp", middleware.VerifyWebhookSignature(appSecret, logger), h.Webhook.Receive)
	webhooks.Post("/flow", middleware.VerifyWebhookSignature(appSecret, logger), h.Flow.Exchange)
}
