package middleware

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/shopchat-labs/shopchat-backend/internal/services"
)

// VerifyWebhookSignature authenticates webhook deliveries against the Meta
// app secret using X-Hub-Signature-256 over the raw request body. Missing
// secret, missing header or mismatched digest all fail closed with 401.
func VerifyWebhookSignature(appSecret string, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(services.SignatureHeader)
		if !services.VerifySignature(c.Body(), header, appSecret) {
			logger.Warn("webhook signature rejected",
				zap.String("path", c.Path()),
				zap.Bool("header_present", header != ""))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid signature",
			})
		}
		return c.Next()
	}
}
