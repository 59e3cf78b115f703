package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// MessagingGateway delivers composed messages to WhatsApp.
type MessagingGateway interface {
	Send(ctx context.Context, msg *OutboundMessage) error
}

// GraphGateway POSTs messages to the Cloud API messages endpoint for one
// phone number. Calls are timeout-bounded: Meta counts a slow webhook
// response as a delivery failure and retries.
type GraphGateway struct {
	baseURL       string
	phoneNumberID string
	accessToken   string
	httpClient    *http.Client
	logger        *zap.Logger
}

// NewGraphGateway creates a Cloud API messaging gateway
func NewGraphGateway(baseURL, phoneNumberID, accessToken string, logger *zap.Logger) *GraphGateway {
	return &GraphGateway{
		baseURL:       baseURL,
		phoneNumberID: phoneNumberID,
		accessToken:   accessToken,
		httpClient:    &http.Client{Timeout: 5 * time.Second},
		logger:        logger,
	}
}

type graphSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Send delivers one message. Non-2xx responses and Graph error objects are
// returned as errors so the caller can apologize in chat.
func (g *GraphGateway) Send(ctx context.Context, msg *OutboundMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal outbound message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", g.baseURL, g.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.accessToken)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	var parsed graphSendResponse
	_ = json.Unmarshal(respBody, &parsed)

	if resp.StatusCode/100 != 2 {
		if parsed.Error != nil {
			return fmt.Errorf("cloud api error %d: %s", parsed.Error.Code, parsed.Error.Message)
		}
		return fmt.Errorf("cloud api status %d", resp.StatusCode)
	}

	if len(parsed.Messages) > 0 {
		g.logger.Debug("message sent",
			zap.String("to", msg.To),
			zap.String("type", msg.Type),
			zap.String("message_id", parsed.Messages[0].ID))
	}
	return nil
}
