package services

import "encoding/json"

// Outbound Cloud API payloads. The composer builds these; the messaging
// gateway delivers them.

// OutboundMessage is one message POSTed to the Cloud API.
type OutboundMessage struct {
	MessagingProduct string          `json:"messaging_product"`
	RecipientType    string          `json:"recipient_type,omitempty"`
	To               string          `json:"to"`
	Type             string          `json:"type"`
	Text             *OutText        `json:"text,omitempty"`
	Interactive      *OutInteractive `json:"interactive,omitempty"`
	Image            *OutImage       `json:"image,omitempty"`
}

// OutText is a plain text body.
type OutText struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url,omitempty"`
}

// OutImage sends an image by link.
type OutImage struct {
	Link    string `json:"link"`
	Caption string `json:"caption,omitempty"`
}

// OutInteractive is a list, reply-button or flow message.
type OutInteractive struct {
	Type   string             `json:"type"`
	Header *InteractiveHeader `json:"header,omitempty"`
	Body   *InteractiveText   `json:"body,omitempty"`
	Footer *InteractiveText   `json:"footer,omitempty"`
	Action *InteractiveAction `json:"action"`
}

// InteractiveHeader tops an interactive message.
type InteractiveHeader struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// InteractiveText is a body or footer text block.
type InteractiveText struct {
	Text string `json:"text"`
}

// InteractiveAction carries the rows, buttons or flow parameters.
type InteractiveAction struct {
	Button     string            `json:"button,omitempty"`
	Sections   []ListSection     `json:"sections,omitempty"`
	Buttons    []ReplyButton     `json:"buttons,omitempty"`
	Name       string            `json:"name,omitempty"`
	Parameters *FlowActionParams `json:"parameters,omitempty"`
}

// ListSection groups list rows.
type ListSection struct {
	Title string    `json:"title,omitempty"`
	Rows  []ListRow `json:"rows"`
}

// ListRow is one tappable list entry; ID comes back in the list reply.
type ListRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// ReplyButton is one tappable reply button (max three per message).
type ReplyButton struct {
	Type  string   `json:"type"`
	Reply ReplyRef `json:"reply"`
}

// ReplyRef identifies the tapped button.
type ReplyRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// FlowActionParams launches a WhatsApp Flow. FlowToken carries the context
// key that must come back with the nfm_reply.
type FlowActionParams struct {
	FlowMessageVersion string          `json:"flow_message_version"`
	FlowID             string          `json:"flow_id"`
	FlowToken          string          `json:"flow_token"`
	FlowCTA            string          `json:"flow_cta"`
	FlowAction         string          `json:"flow_action,omitempty"`
	FlowActionPayload  json.RawMessage `json:"flow_action_payload,omitempty"`
}

// ComposeText builds a plain text message.
func ComposeText(to, body string) *OutboundMessage {
	return &OutboundMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &OutText{Body: body},
	}
}

// ComposeList builds an interactive list. The Cloud API caps a section at
// ten rows; callers cap rows before composing.
func ComposeList(to, header, body, buttonLabel string, rows []ListRow) *OutboundMessage {
	msg := &OutboundMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "interactive",
		Interactive: &OutInteractive{
			Type: "list",
			Body: &InteractiveText{Text: body},
			Action: &InteractiveAction{
				Button:   buttonLabel,
				Sections: []ListSection{{Rows: rows}},
			},
		},
	}
	if header != "" {
		msg.Interactive.Header = &InteractiveHeader{Type: "text", Text: header}
	}
	return msg
}

// ComposeButtons builds an interactive reply-button message (max three).
func ComposeButtons(to, body string, buttons []ReplyRef) *OutboundMessage {
	if len(buttons) > 3 {
		buttons = buttons[:3]
	}
	replyButtons := make([]ReplyButton, 0, len(buttons))
	for _, b := range buttons {
		replyButtons = append(replyButtons, ReplyButton{Type: "reply", Reply: b})
	}
	return &OutboundMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "interactive",
		Interactive: &OutInteractive{
			Type:   "button",
			Body:   &InteractiveText{Text: body},
			Action: &InteractiveAction{Buttons: replyButtons},
		},
	}
}

// ComposeFlow builds a flow launch message.
func ComposeFlow(to, body, flowID, flowToken, cta, screen string) *OutboundMessage {
	payload, _ := json.Marshal(map[string]string{"screen": screen})
	return &OutboundMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "interactive",
		Interactive: &OutInteractive{
			Type: "flow",
			Body: &InteractiveText{Text: body},
			Action: &InteractiveAction{
				Name: "flow",
				Parameters: &FlowActionParams{
					FlowMessageVersion: "3",
					FlowID:             flowID,
					FlowToken:          flowToken,
					FlowCTA:            cta,
					FlowAction:         "navigate",
					FlowActionPayload:  payload,
				},
			},
		},
	}
}

// ComposeImage builds an image-by-link message.
func ComposeImage(to, link, caption string) *OutboundMessage {
	return &OutboundMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "image",
		Image:            &OutImage{Link: link, Caption: caption},
	}
}
