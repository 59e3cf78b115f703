package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// FlowState is the position of a conversation in the checkout state machine.
type FlowState string

const (
	FlowNone             FlowState = "none"
	FlowAddressSelection FlowState = "checkout_address_selection"
	FlowAddressInput     FlowState = "checkout_address_input"
	FlowPayment          FlowState = "checkout_payment"
	FlowConfirm          FlowState = "checkout_confirm"
)

// Session stores per-conversation state for a WhatsApp user, keyed by wa_id.
// Cart and checkout draft are serialized to JSON columns. All mutation goes
// through SessionManager.Update so each wa_id is handled as one serialized unit.
type Session struct {
	gorm.Model
	WaID           string            `json:"wa_id" gorm:"uniqueIndex;not null"`
	ProfileName    string            `json:"profile_name"`
	LinkedCustomer string            `json:"linked_customer"`
	CurrentShop    string            `json:"current_shop"`
	CurrentFlow    FlowState         `json:"current_flow" gorm:"default:none"`
	CartItems      []CartLine        `json:"cart_items" gorm:"serializer:json"`
	CheckoutDraft  *CheckoutDraft    `json:"checkout_draft" gorm:"serializer:json"`
	FlowContext    map[string]string `json:"flow_context" gorm:"serializer:json"`
	Location       *Location         `json:"location" gorm:"serializer:json"`
	ExpiresAt      time.Time         `json:"expires_at"`
}

// CartLine is one cart entry with a unit-price snapshot taken at add time.
type CartLine struct {
	ProductID string            `json:"product_id"`
	Name      string            `json:"name"`
	Quantity  int               `json:"quantity"`
	UnitPrice decimal.Decimal   `json:"unit_price"`
	Options   map[string]string `json:"options,omitempty"`
}

// Subtotal returns unit price times quantity.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// CartTotal sums the subtotals of all lines.
func CartTotal(lines []CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// DeliveryKind tags how the delivery target of a checkout was chosen.
type DeliveryKind string

const (
	DeliverySavedAddress DeliveryKind = "saved_address"
	DeliveryFreeText     DeliveryKind = "free_text"
	DeliveryLastLocation DeliveryKind = "last_location"
)

// PaymentMethod is a checkout payment choice.
type PaymentMethod string

const (
	PaymentWallet PaymentMethod = "wallet"
	PaymentCard   PaymentMethod = "card"
	PaymentCOD    PaymentMethod = "cod"
)

// CheckoutDraft accumulates the delivery and payment choices made during
// checkout, along with the cart total computed when checkout started.
type CheckoutDraft struct {
	DeliveryKind    DeliveryKind    `json:"delivery_kind"`
	DeliveryAddress string          `json:"delivery_address"`
	AddressID       string          `json:"address_id,omitempty"`
	PaymentMethod   PaymentMethod   `json:"payment_method,omitempty"`
	CardToken       string          `json:"card_token,omitempty"`
	Total           decimal.Decimal `json:"total"`
	// EligibleMethods holds the option ids offered at selection time; the
	// chosen method must be one of them.
	EligibleMethods []string `json:"eligible_methods,omitempty"`
}

// Location is the last location message received from the user.
type Location struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Name      string    `json:"name,omitempty"`
	Address   string    `json:"address,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
