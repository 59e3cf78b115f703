package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/shopchat-labs/shopchat-backend/internal/models"
	"github.com/shopchat-labs/shopchat-backend/internal/services"
)

const processTimeout = 30 * time.Second

// WebhookHandler terminates the WhatsApp Cloud API webhook: subscription
// verification on GET, message ingestion on POST.
type WebhookHandler struct {
	verifyToken string
	router      *services.ConversationRouter
	deduper     services.MessageDeduper
	dedupeTTL   time.Duration
	logger      *zap.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(
	verifyToken string,
	router *services.ConversationRouter,
	deduper services.MessageDeduper,
	dedupeTTL time.Duration,
	logger *zap.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		verifyToken: verifyToken,
		router:      router,
		deduper:     deduper,
		dedupeTTL:   dedupeTTL,
		logger:      logger,
	}
}

// Verify answers Meta's subscription handshake: echo hub.challenge when the
// mode and token match, 403 otherwise.
func (h *WebhookHandler) Verify(c *fiber.Ctx) error {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token == h.verifyToken {
		h.logger.Info("webhook verified")
		return c.SendString(challenge)
	}
	return c.SendStatus(fiber.StatusForbidden)
}

// Receive accepts a webhook delivery. The body is parsed and deduplicated,
// then acknowledged with 200 immediately; handling continues in the
// background so Meta's delivery timeout never depends on downstream calls.
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	var envelope models.WebhookEnvelope
	if err := json.Unmarshal(c.Body(), &envelope); err != nil {
		h.logger.Warn("malformed webhook body", zap.Error(err))
		return c.SendStatus(fiber.StatusBadRequest)
	}

	for _, entry := range envelope.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			value := change.Value
			h.dropDuplicates(c.Context(), &value)
			if len(value.Messages) == 0 && len(value.Statuses) == 0 {
				continue
			}
			go func(value models.ChangeValue) {
				ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
				defer cancel()
				h.router.HandleChange(ctx, &value)
			}(value)
		}
	}

	return c.SendStatus(fiber.StatusOK)
}

// dropDuplicates filters out messages whose wamid was already processed.
// Dedupe store failures err on the side of processing: a duplicate reply
// beats a dropped order.
func (h *WebhookHandler) dropDuplicates(ctx context.Context, value *models.ChangeValue) {
	fresh := value.Messages[:0]
	for _, msg := range value.Messages {
		if msg.ID == "" {
			fresh = append(fresh, msg)
			continue
		}
		first, err := h.deduper.MarkProcessed(ctx, msg.ID, h.dedupeTTL)
		if err != nil {
			h.logger.Warn("dedupe check failed, processing anyway",
				zap.String("message_id", msg.ID), zap.Error(err))
			fresh = append(fresh, msg)
			continue
		}
		if !first {
			h.logger.Debug("duplicate message dropped", zap.String("message_id", msg.ID))
			continue
		}
		fresh = append(fresh, msg)
	}
	value.Messages = fresh
}
