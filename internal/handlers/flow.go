package handlers

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/shopchat-labs/shopchat-backend/internal/services"
)

// FlowHandler terminates the WhatsApp Flow data channel. Every response body
// is a raw base64 string sealed under the request's AES key with the flipped
// IV; nothing conversational happens here, the terminal nfm_reply arrives
// through the message webhook.
type FlowHandler struct {
	crypto *services.FlowCryptoService
	logger *zap.Logger
}

// NewFlowHandler creates a new flow handler
func NewFlowHandler(crypto *services.FlowCryptoService, logger *zap.Logger) *FlowHandler {
	return &FlowHandler{crypto: crypto, logger: logger}
}

// Exchange handles one encrypted data-exchange request. A failed key unwrap
// answers 421 so the client re-fetches the public key; any other failure is
// a plain 500. Neither path touches conversation state.
func (h *FlowHandler) Exchange(c *fiber.Ctx) error {
	var exchange services.FlowDataExchange
	if err := json.Unmarshal(c.Body(), &exchange); err != nil {
		h.logger.Warn("malformed flow exchange body", zap.Error(err))
		return c.SendStatus(fiber.StatusBadRequest)
	}

	request, cryptoCtx, err := h.crypto.Decrypt(&exchange)
	if err != nil {
		if errors.Is(err, services.ErrKeyUnwrap) {
			h.logger.Warn("flow key unwrap failed", zap.Error(err))
			return c.SendStatus(fiber.StatusMisdirectedRequest)
		}
		h.logger.Error("flow decrypt failed", zap.Error(err))
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	response := h.respond(request)

	body, err := h.crypto.Encrypt(response, cryptoCtx)
	if err != nil {
		h.logger.Error("flow encrypt failed", zap.Error(err))
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString(body)
}

// respond maps a decrypted flow request to the next screen payload.
func (h *FlowHandler) respond(request *services.FlowRequest) map[string]interface{} {
	switch request.Action {
	case "ping":
		return map[string]interface{}{
			"data": map[string]interface{}{"status": "active"},
		}
	case "INIT":
		return map[string]interface{}{
			"screen": "PRODUCT_OPTIONS",
			"data": map[string]interface{}{
				"flow_token": request.FlowToken,
			},
		}
	case "data_exchange":
		// Echo the collected fields forward so the terminal nfm_reply
		// carries them back through the message webhook.
		data := map[string]interface{}{"flow_token": request.FlowToken}
		for k, v := range request.Data {
			data[k] = v
		}
		return map[string]interface{}{
			"screen": "SUCCESS",
			"data": map[string]interface{}{
				"extension_message_response": map[string]interface{}{
					"params": data,
				},
			},
		}
	default:
		h.logger.Warn("unknown flow action", zap.String("action", request.Action))
		return map[string]interface{}{
			"data": map[string]interface{}{"acknowledged": true},
		}
	}
}
