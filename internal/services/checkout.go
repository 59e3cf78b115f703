package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shopchat-labs/shopchat-backend/internal/models"
	"github.com/shopchat-labs/shopchat-backend/internal/storage"
)

// Payment option identifiers as they appear in interactive replies.
const (
	payOptionWallet     = "pay_wallet"
	payOptionCOD        = "pay_cod"
	payOptionCardPrefix = "pay_card_"
)

// CheckoutOrchestrator drives the browse→cart→checkout state machine from
// address selection through order placement. Its methods mutate the session
// in place and return the replies to send; callers run them inside
// SessionManager.Update so the mutation and save are one serialized unit.
type CheckoutOrchestrator struct {
	store       storage.Store
	catalog     CatalogService
	payments    PaymentProvider
	orders      OrderService
	codEnabled  bool
	defaultShop string
	logger      *zap.Logger
}

// NewCheckoutOrchestrator creates a new checkout orchestrator
func NewCheckoutOrchestrator(
	store storage.Store,
	catalog CatalogService,
	payments PaymentProvider,
	orders OrderService,
	codEnabled bool,
	defaultShop string,
	logger *zap.Logger,
) *CheckoutOrchestrator {
	return &CheckoutOrchestrator{
		store:       store,
		catalog:     catalog,
		payments:    payments,
		orders:      orders,
		codEnabled:  codEnabled,
		defaultShop: defaultShop,
		logger:      logger,
	}
}

// Start opens checkout: up to five saved addresses, the current location if
// one is stored, and a "type new address" row, at most six rows total.
func (c *CheckoutOrchestrator) Start(ctx context.Context, session *models.Session) ([]*OutboundMessage, error) {
	if len(session.CartItems) == 0 {
		return []*OutboundMessage{
			ComposeText(session.WaID, "🛒 Your cart is empty. Browse the catalog or tell me what you'd like to buy first."),
		}, nil
	}

	rows := []ListRow{}
	if session.LinkedCustomer != "" {
		addresses, err := c.store.GetAddresses(session.LinkedCustomer)
		if err != nil {
			return nil, fmt.Errorf("load addresses: %w", err)
		}
		for i, addr := range addresses {
			if i == 5 {
				break
			}
			title := addr.Label
			if title == "" {
				title = "Saved address"
			}
			rows = append(rows, ListRow{
				ID:          "addr_" + addr.AddressID,
				Title:       title,
				Description: truncate(addr.Line, 72),
			})
		}
	}
	if session.Location != nil {
		rows = append(rows, ListRow{
			ID:          "addr_location",
			Title:       "📍 Current location",
			Description: session.Location.Address,
		})
	}
	rows = append(rows, ListRow{
		ID:    "addr_new",
		Title: "✏️ Type a new address",
	})

	session.CheckoutDraft = &models.CheckoutDraft{
		Total: models.CartTotal(session.CartItems),
	}
	session.CurrentFlow = models.FlowAddressSelection

	body := fmt.Sprintf("Where should we deliver your %d item(s)?\nTotal: %s", len(session.CartItems), formatMoney(session.CheckoutDraft.Total))
	return []*OutboundMessage{
		ComposeList(session.WaID, "Delivery address", body, "Choose", rows),
	}, nil
}

// AddressSelected handles an addr_<id> list reply while in address selection.
func (c *CheckoutOrchestrator) AddressSelected(ctx context.Context, session *models.Session, addressID string) ([]*OutboundMessage, error) {
	switch addressID {
	case "location":
		return c.addressFromLocation(ctx, session)
	case "new":
		session.CurrentFlow = models.FlowAddressInput
		return []*OutboundMessage{
			ComposeText(session.WaID, "✏️ Please type your full delivery address."),
		}, nil
	}

	address, err := c.store.GetAddress(addressID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return []*OutboundMessage{
				ComposeText(session.WaID, "❌ That address is no longer available. Please choose again."),
			}, nil
		}
		return nil, fmt.Errorf("load address %s: %w", addressID, err)
	}

	session.CheckoutDraft.DeliveryKind = models.DeliverySavedAddress
	session.CheckoutDraft.AddressID = address.AddressID
	session.CheckoutDraft.DeliveryAddress = address.Line
	return c.offerPaymentOptions(ctx, session)
}

// AddressInput takes free text typed while in checkout_address_input
// verbatim as the delivery address.
func (c *CheckoutOrchestrator) AddressInput(ctx context.Context, session *models.Session, text string) ([]*OutboundMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []*OutboundMessage{
			ComposeText(session.WaID, "✏️ Please type your full delivery address."),
		}, nil
	}
	session.CheckoutDraft.DeliveryKind = models.DeliveryFreeText
	session.CheckoutDraft.DeliveryAddress = text
	return c.offerPaymentOptions(ctx, session)
}

func (c *CheckoutOrchestrator) addressFromLocation(ctx context.Context, session *models.Session) ([]*OutboundMessage, error) {
	if session.Location == nil {
		return []*OutboundMessage{
			ComposeText(session.WaID, "📍 I don't have your location. Share it, or choose another option."),
		}, nil
	}
	session.CheckoutDraft.DeliveryKind = models.DeliveryLastLocation
	session.CheckoutDraft.DeliveryAddress = fmt.Sprintf("%.6f,%.6f", session.Location.Latitude, session.Location.Longitude)
	if session.Location.Address != "" {
		session.CheckoutDraft.DeliveryAddress = session.Location.Address
	}
	return c.offerPaymentOptions(ctx, session)
}

// offerPaymentOptions computes the payment methods eligible right now:
// wallet only when the balance covers the total, one option per stored card
// token, COD only when the platform toggle is on and the shop has not
// disabled it. No eligible options is an explicit failure, never a silent
// fallthrough.
func (c *CheckoutOrchestrator) offerPaymentOptions(ctx context.Context, session *models.Session) ([]*OutboundMessage, error) {
	draft := session.CheckoutDraft
	rows := []ListRow{}
	eligible := []string{}

	if session.LinkedCustomer != "" {
		balance, err := c.payments.WalletBalance(ctx, session.LinkedCustomer)
		if err != nil {
			c.logger.Warn("wallet balance unavailable", zap.String("wa_id", session.WaID), zap.Error(err))
		} else if balance.GreaterThanOrEqual(draft.Total) {
			rows = append(rows, ListRow{
				ID:          payOptionWallet,
				Title:       "💰 Wallet",
				Description: "Balance " + formatMoney(balance),
			})
			eligible = append(eligible, payOptionWallet)
		}

		cards, err := c.store.GetCardTokens(session.LinkedCustomer)
		if err != nil {
			return nil, fmt.Errorf("load card tokens: %w", err)
		}
		for _, card := range cards {
			id := payOptionCardPrefix + card.Token
			rows = append(rows, ListRow{
				ID:    id,
				Title: "💳 " + card.DisplayName(),
			})
			eligible = append(eligible, id)
		}
	}

	if c.codEnabled && c.shopAllowsCOD(ctx, session) {
		rows = append(rows, ListRow{
			ID:    payOptionCOD,
			Title: "💵 Cash on delivery",
		})
		eligible = append(eligible, payOptionCOD)
	}

	if len(eligible) == 0 {
		return []*OutboundMessage{
			ComposeText(session.WaID, "❌ No payment method is available for this order right now. Please top up your wallet or contact support."),
		}, nil
	}

	draft.EligibleMethods = eligible
	session.CurrentFlow = models.FlowPayment

	body := fmt.Sprintf("Delivering to: %s\nTotal: %s\n\nHow would you like to pay?",
		truncate(draft.DeliveryAddress, 120), formatMoney(draft.Total))
	return []*OutboundMessage{
		ComposeList(session.WaID, "Payment", body, "Pay with", rows),
	}, nil
}

// shopAllowsCOD resolves the shop-level COD flag; an unreachable catalog
// means COD cannot be confirmed and is withheld.
func (c *CheckoutOrchestrator) shopAllowsCOD(ctx context.Context, session *models.Session) bool {
	shopID := session.CurrentShop
	if shopID == "" {
		shopID = c.defaultShop
	}
	if shopID == "" {
		return true
	}
	shop, err := c.catalog.GetShop(ctx, shopID)
	if err != nil {
		c.logger.Warn("shop lookup failed, withholding COD", zap.String("shop_id", shopID), zap.Error(err))
		return false
	}
	return shop.CODEnabled()
}

// PaymentSelected records a pay_* choice made while in checkout_payment. The
// choice must be one of the options offered at selection time.
func (c *CheckoutOrchestrator) PaymentSelected(ctx context.Context, session *models.Session, optionID string) ([]*OutboundMessage, error) {
	draft := session.CheckoutDraft

	allowed := false
	for _, id := range draft.EligibleMethods {
		if id == optionID {
			allowed = true
			break
		}
	}
	if !allowed {
		return []*OutboundMessage{
			ComposeText(session.WaID, "❌ That payment option isn't available. Please pick one from the list."),
		}, nil
	}

	switch {
	case optionID == payOptionWallet:
		draft.PaymentMethod = models.PaymentWallet
	case optionID == payOptionCOD:
		draft.PaymentMethod = models.PaymentCOD
	case strings.HasPrefix(optionID, payOptionCardPrefix):
		draft.PaymentMethod = models.PaymentCard
		draft.CardToken = strings.TrimPrefix(optionID, payOptionCardPrefix)
	}

	session.CurrentFlow = models.FlowConfirm

	summary := fmt.Sprintf("🧾 *Order summary*\n\nItems: %d\nTotal: %s\nDeliver to: %s\nPayment: %s",
		len(session.CartItems),
		formatMoney(draft.Total),
		truncate(draft.DeliveryAddress, 120),
		paymentLabel(draft))
	return []*OutboundMessage{
		ComposeButtons(session.WaID, summary, []ReplyRef{
			{ID: "cmd_confirm", Title: "Confirm ✅"},
			{ID: "cmd_cancel", Title: "Cancel ❌"},
		}),
	}, nil
}

// PlaceOrder creates the order and runs the payment leg for the chosen
// method. If the payment leg fails after the order was created, the order is
// cancelled (compensating cancel), the cart is preserved and the user is
// told; the session stays in checkout_confirm so Confirm can be retried.
func (c *CheckoutOrchestrator) PlaceOrder(ctx context.Context, session *models.Session) ([]*OutboundMessage, error) {
	draft := session.CheckoutDraft

	shopID := session.CurrentShop
	if shopID == "" {
		shopID = c.defaultShop
	}

	lines := make([]models.OrderLine, 0, len(session.CartItems))
	for _, item := range session.CartItems {
		lines = append(lines, models.OrderLine{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Options:   item.Options,
		})
	}

	request := &models.OrderRequest{
		RequestID:       uuid.NewString(),
		WaID:            session.WaID,
		CustomerID:      session.LinkedCustomer,
		ShopID:          shopID,
		Lines:           lines,
		Total:           draft.Total,
		DeliveryKind:    draft.DeliveryKind,
		DeliveryAddress: draft.DeliveryAddress,
		PaymentMethod:   draft.PaymentMethod,
	}

	order, err := c.orders.CreateOrder(ctx, request)
	if err != nil {
		c.logger.Error("order creation failed", zap.String("wa_id", session.WaID), zap.Error(err))
		return []*OutboundMessage{
			ComposeText(session.WaID, "😔 We couldn't place your order. Your cart is unchanged — please try Confirm again in a moment."),
		}, nil
	}

	if err := c.runPaymentLeg(ctx, session, order); err != nil {
		c.logger.Error("payment leg failed, cancelling order",
			zap.String("order_id", order.OrderID), zap.Error(err))
		if cancelErr := c.orders.CancelOrder(ctx, order.OrderID, "payment failed"); cancelErr != nil {
			c.logger.Error("compensating cancel failed", zap.String("order_id", order.OrderID), zap.Error(cancelErr))
		}
		return []*OutboundMessage{
			ComposeText(session.WaID, "😔 Payment didn't go through, so the order was not placed. Your cart is saved — try again or pick a different payment method."),
		}, nil
	}

	session.CartItems = []models.CartLine{}
	session.CheckoutDraft = nil
	session.CurrentFlow = models.FlowNone

	return []*OutboundMessage{
		ComposeText(session.WaID, fmt.Sprintf("🎉 Order *%s* placed!\nTotal: %s\nWe'll message you with updates.", order.OrderID, formatMoney(order.Total))),
	}, nil
}

func (c *CheckoutOrchestrator) runPaymentLeg(ctx context.Context, session *models.Session, order *models.Order) error {
	draft := session.CheckoutDraft
	switch draft.PaymentMethod {
	case models.PaymentWallet:
		if err := c.payments.DebitWallet(ctx, session.LinkedCustomer, draft.Total, order.OrderID); err != nil {
			return fmt.Errorf("wallet debit: %w", err)
		}
		return c.markPaid(ctx, order.OrderID)
	case models.PaymentCard:
		if err := c.payments.ChargeToken(ctx, draft.CardToken, draft.Total, order.OrderID); err != nil {
			return fmt.Errorf("card charge: %w", err)
		}
		return c.markPaid(ctx, order.OrderID)
	case models.PaymentCOD:
		// COD stays unpaid until delivery; a failed mark is logged, not fatal.
		if err := c.orders.SetPaymentStatus(ctx, order.OrderID, models.PaymentStatusUnpaid); err != nil {
			c.logger.Warn("failed to mark COD order unpaid", zap.String("order_id", order.OrderID), zap.Error(err))
		}
		return nil
	default:
		return fmt.Errorf("unknown payment method %q", draft.PaymentMethod)
	}
}

func (c *CheckoutOrchestrator) markPaid(ctx context.Context, orderID string) error {
	if err := c.orders.SetPaymentStatus(ctx, orderID, models.PaymentStatusPaid); err != nil {
		c.logger.Warn("failed to mark order paid", zap.String("order_id", orderID), zap.Error(err))
	}
	return nil
}

// Cancel leaves checkout. The cart is kept so the user can resume later.
func (c *CheckoutOrchestrator) Cancel(session *models.Session) []*OutboundMessage {
	session.CheckoutDraft = nil
	session.CurrentFlow = models.FlowNone
	return []*OutboundMessage{
		ComposeText(session.WaID, "👍 Checkout cancelled. Your cart is saved — type *checkout* whenever you're ready."),
	}
}

func paymentLabel(draft *models.CheckoutDraft) string {
	switch draft.PaymentMethod {
	case models.PaymentWallet:
		return "Wallet"
	case models.PaymentCard:
		return "Card"
	case models.PaymentCOD:
		return "Cash on delivery"
	default:
		return string(draft.PaymentMethod)
	}
}

func formatMoney(amount fmt.Stringer) string {
	return "₹" + amount.String()
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
