package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shopchat-labs/shopchat-backend/internal/models"
	"github.com/shopchat-labs/shopchat-backend/internal/storage"
)

// interactiveTarget is the closed set of reply-identifier prefixes. Raw ids
// are decoded once at the router boundary and dispatched on the tag.
type interactiveTarget int

const (
	targetUnknown interactiveTarget = iota
	targetShop
	targetCategory
	targetProduct
	targetAddress
	targetPayment
	targetCart
	targetCommand
)

var targetPrefixes = []struct {
	prefix string
	target interactiveTarget
}{
	{"shop_", targetShop},
	{"cat_", targetCategory},
	{"prod_", targetProduct},
	{"addr_", targetAddress},
	{"pay_", targetPayment},
	{"cart_", targetCart},
	{"cmd_", targetCommand},
}

// decodeInteractiveID maps a reply id to its target and the id remainder.
func decodeInteractiveID(id string) (interactiveTarget, string) {
	for _, p := range targetPrefixes {
		if strings.HasPrefix(id, p.prefix) {
			return p.target, strings.TrimPrefix(id, p.prefix)
		}
	}
	return targetUnknown, id
}

const genericApology = "😔 Sorry, something went wrong on our side. Please try again in a moment."

// ConversationRouter dispatches inbound webhook events to handlers and keeps
// the per-conversation state machine moving. One invocation handles one
// webhook delivery; session mutation is serialized by the SessionManager.
type ConversationRouter struct {
	sessions    *SessionManager
	intents     *IntentClassifier
	checkout    *CheckoutOrchestrator
	catalog     CatalogService
	payments    PaymentProvider
	orders      OrderService
	gateway     MessagingGateway
	store       storage.Store
	flowID      string
	multiVendor bool
	defaultShop string
	logger      *zap.Logger
}

// NewConversationRouter creates a new conversation router
func NewConversationRouter(
	sessions *SessionManager,
	intents *IntentClassifier,
	checkout *CheckoutOrchestrator,
	catalog CatalogService,
	payments PaymentProvider,
	orders OrderService,
	gateway MessagingGateway,
	store storage.Store,
	flowID string,
	multiVendor bool,
	defaultShop string,
	logger *zap.Logger,
) *ConversationRouter {
	return &ConversationRouter{
		sessions:    sessions,
		intents:     intents,
		checkout:    checkout,
		catalog:     catalog,
		payments:    payments,
		orders:      orders,
		gateway:     gateway,
		store:       store,
		flowID:      flowID,
		multiVendor: multiVendor,
		defaultShop: defaultShop,
		logger:      logger,
	}
}

// HandleChange processes one webhook change value: every message is handled,
// status updates are acknowledged and logged only.
func (r *ConversationRouter) HandleChange(ctx context.Context, value *models.ChangeValue) {
	for _, status := range value.Statuses {
		r.logger.Debug("message status",
			zap.String("message_id", status.ID), zap.String("status", status.Status))
	}

	var contact *models.Contact
	if len(value.Contacts) > 0 {
		contact = &value.Contacts[0]
	}

	for i := range value.Messages {
		r.HandleMessage(ctx, &value.Messages[i], contact)
	}
}

// HandleMessage routes one inbound message. Handler failures end in a
// generic apology, never a crash or a silent drop.
func (r *ConversationRouter) HandleMessage(ctx context.Context, msg *models.Message, contact *models.Contact) {
	waID := msg.From
	profileName := ""
	if contact != nil {
		if contact.WaID != "" {
			waID = contact.WaID
		}
		profileName = contact.Profile.Name
	}
	if waID == "" {
		r.logger.Warn("message without sender, dropping", zap.String("message_id", msg.ID))
		return
	}

	var replies []*OutboundMessage
	_, err := r.sessions.Update(ctx, waID, func(session *models.Session) error {
		if profileName != "" {
			session.ProfileName = profileName
		}
		r.linkCustomer(session)

		var dispatchErr error
		replies, dispatchErr = r.dispatch(ctx, session, msg)
		return dispatchErr
	})
	if err != nil {
		r.logger.Error("message handling failed",
			zap.String("wa_id", waID), zap.String("type", msg.Type), zap.Error(err))
		replies = []*OutboundMessage{ComposeText(waID, genericApology)}
	}

	for _, reply := range replies {
		if sendErr := r.gateway.Send(ctx, reply); sendErr != nil {
			r.logger.Error("failed to send reply", zap.String("wa_id", waID), zap.Error(sendErr))
		}
	}
}

// linkCustomer attaches the platform customer profile on first contact.
func (r *ConversationRouter) linkCustomer(session *models.Session) {
	if session.LinkedCustomer != "" {
		return
	}
	customer, err := r.store.GetCustomerByWaID(session.WaID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			r.logger.Warn("customer lookup failed", zap.String("wa_id", session.WaID), zap.Error(err))
		}
		return
	}
	session.LinkedCustomer = customer.CustomerID
}

func (r *ConversationRouter) dispatch(ctx context.Context, session *models.Session, msg *models.Message) ([]*OutboundMessage, error) {
	switch msg.Type {
	case "text":
		if msg.Text == nil {
			return nil, nil
		}
		return r.handleText(ctx, session, msg.Text.Body)
	case "location":
		if msg.Location == nil {
			return nil, nil
		}
		return r.handleLocation(session, msg.Location), nil
	case "interactive":
		if msg.Interactive == nil {
			return nil, nil
		}
		return r.handleInteractive(ctx, session, msg.Interactive)
	default:
		r.logger.Debug("unsupported message type ignored",
			zap.String("wa_id", session.WaID), zap.String("type", msg.Type))
		return nil, nil
	}
}

// handleText routes free text. In checkout_address_input the text is the
// address, taken verbatim and never re-classified; mid-checkout text
// elsewhere nudges the user back to the list without touching state.
func (r *ConversationRouter) handleText(ctx context.Context, session *models.Session, text string) ([]*OutboundMessage, error) {
	switch session.CurrentFlow {
	case models.FlowAddressInput:
		return r.checkout.AddressInput(ctx, session, text)
	case models.FlowAddressSelection, models.FlowPayment, models.FlowConfirm:
		return []*OutboundMessage{
			ComposeText(session.WaID, "You're mid-checkout — please pick an option from the list above, or tap Cancel."),
		}, nil
	}

	intent, score := r.intents.Classify(ctx, text)
	r.logger.Debug("intent classified",
		zap.String("wa_id", session.WaID), zap.String("intent", intent), zap.Float64("score", score))

	switch intent {
	case "greeting":
		return r.greet(session), nil
	case "buy", "find":
		return r.handleProductSearch(ctx, session, ExtractEntity(text))
	case "view_cart":
		return r.renderCart(session), nil
	case "check_wallet":
		return r.handleWalletCheck(ctx, session)
	case "track":
		return r.handleTrack(ctx, session)
	default:
		return []*OutboundMessage{
			ComposeText(session.WaID, "🤔 I didn't catch that. You can say things like *buy milk*, *show my cart*, *check my wallet* or *track my order*."),
		}, nil
	}
}

func (r *ConversationRouter) greet(session *models.Session) []*OutboundMessage {
	name := session.ProfileName
	if name == "" {
		name = "there"
	}
	greeting := fmt.Sprintf("👋 Hi %s! Welcome — I can help you browse, shop and pay right here in WhatsApp.", name)
	return []*OutboundMessage{
		ComposeButtons(session.WaID, greeting, []ReplyRef{
			{ID: "cmd_browse", Title: "🛍 Browse"},
			{ID: "cmd_view_cart", Title: "🛒 My cart"},
			{ID: "cmd_help", Title: "Help"},
		}),
	}
}

// handleProductSearch runs a catalog search for the extracted entity in the
// session's shop context.
func (r *ConversationRouter) handleProductSearch(ctx context.Context, session *models.Session, entity string) ([]*OutboundMessage, error) {
	if entity == "" {
		return []*OutboundMessage{
			ComposeText(session.WaID, "What would you like to buy? For example: *buy milk*."),
		}, nil
	}

	shopID := session.CurrentShop
	if shopID == "" {
		shopID = r.defaultShop
	}
	if shopID == "" && r.multiVendor {
		return r.sendShopList(ctx, session)
	}

	products, err := r.catalog.SearchProducts(ctx, shopID, entity)
	if err != nil {
		return nil, fmt.Errorf("catalog search %q: %w", entity, err)
	}
	if len(products) == 0 {
		return []*OutboundMessage{
			ComposeText(session.WaID, fmt.Sprintf("😕 No results for *%s*. Try another word?", entity)),
		}, nil
	}

	return []*OutboundMessage{r.productListMessage(session.WaID, fmt.Sprintf("Results for \"%s\"", entity), products)}, nil
}

func (r *ConversationRouter) productListMessage(waID, header string, products []models.Product) *OutboundMessage {
	rows := make([]ListRow, 0, 10)
	for i, product := range products {
		if i == 10 {
			break
		}
		rows = append(rows, ListRow{
			ID:          "prod_" + product.ProductID,
			Title:       truncate(product.Name, 24),
			Description: formatMoney(product.Price),
		})
	}
	return ComposeList(waID, header, "Tap a product to see details.", "View", rows)
}

func (r *ConversationRouter) sendShopList(ctx context.Context, session *models.Session) ([]*OutboundMessage, error) {
	shops, err := r.catalog.ListShops(ctx)
	if err != nil {
		return nil, fmt.Errorf("list shops: %w", err)
	}
	if len(shops) == 0 {
		return []*OutboundMessage{
			ComposeText(session.WaID, "😕 No shops are open right now. Please check back later."),
		}, nil
	}
	rows := make([]ListRow, 0, 10)
	for i, shop := range shops {
		if i == 10 {
			break
		}
		rows = append(rows, ListRow{ID: "shop_" + shop.ShopID, Title: truncate(shop.Name, 24)})
	}
	return []*OutboundMessage{
		ComposeList(session.WaID, "Shops", "Pick a shop to start browsing.", "Shops", rows),
	}, nil
}

func (r *ConversationRouter) renderCart(session *models.Session) []*OutboundMessage {
	if len(session.CartItems) == 0 {
		return []*OutboundMessage{
			ComposeText(session.WaID, "🛒 Your cart is empty."),
		}
	}

	var b strings.Builder
	b.WriteString("🛒 *Your cart*\n\n")
	for _, line := range session.CartItems {
		fmt.Fprintf(&b, "• %s ×%d — %s\n", line.Name, line.Quantity, formatMoney(line.Subtotal()))
	}
	fmt.Fprintf(&b, "\nTotal: %s", formatMoney(models.CartTotal(session.CartItems)))

	return []*OutboundMessage{
		ComposeButtons(session.WaID, b.String(), []ReplyRef{
			{ID: "cmd_checkout", Title: "Checkout ✅"},
			{ID: "cmd_clear_cart", Title: "Clear 🗑"},
		}),
	}
}

func (r *ConversationRouter) handleWalletCheck(ctx context.Context, session *models.Session) ([]*OutboundMessage, error) {
	if session.LinkedCustomer == "" {
		return []*OutboundMessage{
			ComposeText(session.WaID, "You don't have a wallet yet — it's created with your first order."),
		}, nil
	}
	balance, err := r.payments.WalletBalance(ctx, session.LinkedCustomer)
	if err != nil {
		return nil, fmt.Errorf("wallet balance: %w", err)
	}
	return []*OutboundMessage{
		ComposeText(session.WaID, fmt.Sprintf("💰 Your wallet balance is %s.", formatMoney(balance))),
	}, nil
}

func (r *ConversationRouter) handleTrack(ctx context.Context, session *models.Session) ([]*OutboundMessage, error) {
	order, err := r.orders.LastOrder(ctx, session.WaID)
	if err != nil {
		return nil, fmt.Errorf("last order: %w", err)
	}
	return []*OutboundMessage{
		ComposeText(session.WaID, fmt.Sprintf("📦 Order *%s* is currently *%s*.", order.OrderID, order.Status)),
	}, nil
}

// handleLocation stores the pin unconditionally and asks for confirmation;
// it never changes current_flow.
func (r *ConversationRouter) handleLocation(session *models.Session, loc *models.LocationBody) []*OutboundMessage {
	session.Location = &models.Location{
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Name:      loc.Name,
		Address:   loc.Address,
		UpdatedAt: time.Now(),
	}
	return []*OutboundMessage{
		ComposeText(session.WaID, "📍 Got your location! I'll offer it as a delivery option at checkout."),
	}
}

func (r *ConversationRouter) handleInteractive(ctx context.Context, session *models.Session, ir *models.InteractiveResponse) ([]*OutboundMessage, error) {
	if ir.NFMReply != nil {
		return r.handleFlowReply(ctx, session, ir.NFMReply)
	}

	var reply *models.ReplyRef
	switch {
	case ir.ListReply != nil:
		reply = ir.ListReply
	case ir.ButtonReply != nil:
		reply = ir.ButtonReply
	default:
		return nil, nil
	}

	target, rest := decodeInteractiveID(reply.ID)
	// Cart-affecting taps (shop switch, cart actions) are valid only outside
	// checkout; a stale button must not change what is being paid for.
	switch target {
	case targetShop:
		if session.CurrentFlow != models.FlowNone {
			return nil, nil
		}
		return r.handleShopSelected(ctx, session, rest)
	case targetCategory:
		return r.handleCategorySelected(ctx, session, rest)
	case targetProduct:
		return r.handleProductSelected(ctx, session, rest)
	case targetAddress:
		if session.CurrentFlow != models.FlowAddressSelection {
			return nil, nil
		}
		return r.checkout.AddressSelected(ctx, session, rest)
	case targetPayment:
		if session.CurrentFlow != models.FlowPayment {
			return nil, nil
		}
		return r.checkout.PaymentSelected(ctx, session, reply.ID)
	case targetCart:
		if session.CurrentFlow != models.FlowNone {
			return nil, nil
		}
		return r.handleCartAction(ctx, session, rest)
	case targetCommand:
		return r.handleCommand(ctx, session, rest)
	default:
		r.logger.Warn("unrecognized interactive id ignored",
			zap.String("wa_id", session.WaID), zap.String("id", reply.ID))
		return nil, nil
	}
}

// handleShopSelected sets the shop context. Switching shops drops the cart
// so a session never carries lines from two shops.
func (r *ConversationRouter) handleShopSelected(ctx context.Context, session *models.Session, shopID string) ([]*OutboundMessage, error) {
	replies := []*OutboundMessage{}
	if session.CurrentShop != "" && session.CurrentShop != shopID && len(session.CartItems) > 0 {
		session.CartItems = []models.CartLine{}
		replies = append(replies, ComposeText(session.WaID, "🛒 Switched shops — your previous cart was cleared."))
	}
	session.CurrentShop = shopID

	categories, err := r.catalog.ListCategories(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	if len(categories) == 0 {
		return append(replies, ComposeText(session.WaID, "This shop has nothing listed yet.")), nil
	}
	rows := make([]ListRow, 0, 10)
	for i, category := range categories {
		if i == 10 {
			break
		}
		rows = append(rows, ListRow{ID: "cat_" + category.CategoryID, Title: truncate(category.Name, 24)})
	}
	return append(replies, ComposeList(session.WaID, "Categories", "What are you looking for?", "Browse", rows)), nil
}

func (r *ConversationRouter) handleCategorySelected(ctx context.Context, session *models.Session, categoryID string) ([]*OutboundMessage, error) {
	shopID := session.CurrentShop
	if shopID == "" {
		shopID = r.defaultShop
	}
	products, err := r.catalog.ListProducts(ctx, shopID, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	if len(products) == 0 {
		return []*OutboundMessage{
			ComposeText(session.WaID, "Nothing in this category yet."),
		}, nil
	}
	return []*OutboundMessage{r.productListMessage(session.WaID, "Products", products)}, nil
}

// handleProductSelected shows product detail. With a Flow configured the
// options form is launched and its token is bound to the product id in the
// session, which is the context the nfm_reply must bring back.
func (r *ConversationRouter) handleProductSelected(ctx context.Context, session *models.Session, productID string) ([]*OutboundMessage, error) {
	product, err := r.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", productID, err)
	}

	detail := fmt.Sprintf("*%s*\n%s\n\nPrice: %s", product.Name, product.Description, formatMoney(product.Price))
	replies := []*OutboundMessage{}
	if product.ImageURL != "" {
		replies = append(replies, ComposeImage(session.WaID, product.ImageURL, product.Name))
	}

	if r.flowID != "" {
		token := uuid.NewString()
		if session.FlowContext == nil {
			session.FlowContext = map[string]string{}
		}
		session.FlowContext[token] = product.ProductID
		replies = append(replies, ComposeFlow(session.WaID, detail, r.flowID, token, "Choose options", "PRODUCT_OPTIONS"))
		return replies, nil
	}

	replies = append(replies, ComposeButtons(session.WaID, detail, []ReplyRef{
		{ID: "cart_add_" + product.ProductID, Title: "Add to cart 🛒"},
		{ID: "cmd_view_cart", Title: "View cart"},
	}))
	return replies, nil
}

// handleFlowReply completes a product-options Flow. The reply must carry the
// flow token bound when the Flow was sent; a missing or unknown token is a
// user-visible selection error, not a silent drop.
func (r *ConversationRouter) handleFlowReply(ctx context.Context, session *models.Session, reply *models.FlowReplyBody) ([]*OutboundMessage, error) {
	if session.CurrentFlow != models.FlowNone {
		r.logger.Debug("flow reply ignored mid-checkout", zap.String("wa_id", session.WaID))
		return nil, nil
	}

	selectionError := []*OutboundMessage{
		ComposeText(session.WaID, "⚠️ Something went wrong with that selection. Please open the product again."),
	}

	var payload struct {
		FlowToken string            `json:"flow_token"`
		Quantity  string            `json:"quantity"`
		Options   map[string]string `json:"options"`
	}
	if err := json.Unmarshal([]byte(reply.ResponseJSON), &payload); err != nil {
		r.logger.Warn("malformed flow reply", zap.String("wa_id", session.WaID), zap.Error(err))
		return selectionError, nil
	}

	productID, ok := session.FlowContext[payload.FlowToken]
	if payload.FlowToken == "" || !ok {
		r.logger.Warn("flow reply without context", zap.String("wa_id", session.WaID))
		return selectionError, nil
	}
	delete(session.FlowContext, payload.FlowToken)

	quantity := 1
	if payload.Quantity != "" {
		if _, err := fmt.Sscanf(payload.Quantity, "%d", &quantity); err != nil || quantity < 1 {
			quantity = 1
		}
	}

	return r.addToCart(ctx, session, productID, quantity, payload.Options)
}

func (r *ConversationRouter) handleCartAction(ctx context.Context, session *models.Session, action string) ([]*OutboundMessage, error) {
	switch {
	case strings.HasPrefix(action, "add_"):
		return r.addToCart(ctx, session, strings.TrimPrefix(action, "add_"), 1, nil)
	case strings.HasPrefix(action, "remove_"):
		productID := strings.TrimPrefix(action, "remove_")
		kept := session.CartItems[:0]
		for _, line := range session.CartItems {
			if line.ProductID != productID {
				kept = append(kept, line)
			}
		}
		session.CartItems = kept
		return r.renderCart(session), nil
	case action == "clear":
		session.CartItems = []models.CartLine{}
		return []*OutboundMessage{
			ComposeText(session.WaID, "🗑 Cart cleared."),
		}, nil
	default:
		r.logger.Warn("unrecognized cart action ignored",
			zap.String("wa_id", session.WaID), zap.String("action", action))
		return nil, nil
	}
}

// addToCart snapshots the current unit price into the cart line.
func (r *ConversationRouter) addToCart(ctx context.Context, session *models.Session, productID string, quantity int, options map[string]string) ([]*OutboundMessage, error) {
	product, err := r.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", productID, err)
	}
	if !product.InStock {
		return []*OutboundMessage{
			ComposeText(session.WaID, fmt.Sprintf("😕 *%s* is out of stock right now.", product.Name)),
		}, nil
	}
	if quantity < 1 {
		quantity = 1
	}

	merged := false
	for i := range session.CartItems {
		line := &session.CartItems[i]
		if line.ProductID == productID && equalOptions(line.Options, options) {
			line.Quantity += quantity
			merged = true
			break
		}
	}
	if !merged {
		session.CartItems = append(session.CartItems, models.CartLine{
			ProductID: product.ProductID,
			Name:      product.Name,
			Quantity:  quantity,
			UnitPrice: product.Price,
			Options:   options,
		})
	}
	if session.CurrentShop == "" {
		session.CurrentShop = product.ShopID
	}

	body := fmt.Sprintf("✅ Added *%s* ×%d to your cart.\nCart total: %s",
		product.Name, quantity, formatMoney(models.CartTotal(session.CartItems)))
	return []*OutboundMessage{
		ComposeButtons(session.WaID, body, []ReplyRef{
			{ID: "cmd_checkout", Title: "Checkout ✅"},
			{ID: "cmd_view_cart", Title: "View cart 🛒"},
		}),
	}, nil
}

func (r *ConversationRouter) handleCommand(ctx context.Context, session *models.Session, command string) ([]*OutboundMessage, error) {
	switch command {
	case "checkout":
		if session.CurrentFlow != models.FlowNone {
			return nil, nil
		}
		return r.checkout.Start(ctx, session)
	case "confirm":
		if session.CurrentFlow != models.FlowConfirm {
			return nil, nil
		}
		return r.checkout.PlaceOrder(ctx, session)
	case "cancel":
		if session.CurrentFlow == models.FlowNone {
			return nil, nil
		}
		return r.checkout.Cancel(session), nil
	case "view_cart":
		return r.renderCart(session), nil
	case "clear_cart":
		if session.CurrentFlow != models.FlowNone {
			return nil, nil
		}
		session.CartItems = []models.CartLine{}
		return []*OutboundMessage{
			ComposeText(session.WaID, "🗑 Cart cleared."),
		}, nil
	case "browse":
		if r.multiVendor && session.CurrentShop == "" {
			return r.sendShopList(ctx, session)
		}
		shopID := session.CurrentShop
		if shopID == "" {
			shopID = r.defaultShop
		}
		return r.handleShopSelected(ctx, session, shopID)
	case "help":
		return []*OutboundMessage{
			ComposeText(session.WaID, "ℹ️ You can say things like:\n• *buy milk*\n• *show my cart*\n• *check my wallet*\n• *track my order*\n\nOr tap 🛍 Browse to explore the catalog."),
		}, nil
	default:
		r.logger.Warn("unrecognized command ignored",
			zap.String("wa_id", session.WaID), zap.String("command", command))
		return nil, nil
	}
}

func equalOptions(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
