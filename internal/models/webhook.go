package models

// Inbound webhook wire shapes for the WhatsApp Cloud API. Only the fields
// this engine reads are modelled; everything else is ignored on decode.

// WebhookEnvelope is the top-level POST body Meta delivers.
type WebhookEnvelope struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry wraps the changes for one WhatsApp Business Account.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change is one field-level notification.
type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// ChangeValue carries the messages, contacts and delivery statuses of a change.
type ChangeValue struct {
	MessagingProduct string          `json:"messaging_product"`
	Metadata         WebhookMetadata `json:"metadata"`
	Contacts         []Contact       `json:"contacts"`
	Messages         []Message       `json:"messages"`
	Statuses         []MessageStatus `json:"statuses"`
}

// WebhookMetadata identifies the receiving business number.
type WebhookMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// Contact is the sender profile attached to inbound messages.
type Contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// Message is one inbound message of any supported type.
type Message struct {
	From        string               `json:"from"`
	ID          string               `json:"id"`
	Timestamp   string               `json:"timestamp"`
	Type        string               `json:"type"`
	Text        *TextBody            `json:"text,omitempty"`
	Location    *LocationBody        `json:"location,omitempty"`
	Interactive *InteractiveResponse `json:"interactive,omitempty"`
}

// TextBody is the body of a plain text message.
type TextBody struct {
	Body string `json:"body"`
}

// LocationBody is a shared location pin.
type LocationBody struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// InteractiveResponse is the user's tap on a list row, reply button or
// completed Flow.
type InteractiveResponse struct {
	Type        string         `json:"type"`
	ButtonReply *ReplyRef      `json:"button_reply,omitempty"`
	ListReply   *ReplyRef      `json:"list_reply,omitempty"`
	NFMReply    *FlowReplyBody `json:"nfm_reply,omitempty"`
}

// ReplyRef references the tapped row or button by its identifier.
type ReplyRef struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// FlowReplyBody is the terminal payload of a completed WhatsApp Flow.
// ResponseJSON carries the screen data, including the flow_token that holds
// the context key established when the Flow was sent.
type FlowReplyBody struct {
	Name         string `json:"name"`
	Body         string `json:"body"`
	ResponseJSON string `json:"response_json"`
}

// MessageStatus is a delivery/read status update; acknowledged but not acted on.
type MessageStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	RecipientID string `json:"recipient_id"`
}
