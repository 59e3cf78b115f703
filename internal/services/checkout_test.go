package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopchat-labs/shopchat-backend/internal/logger"
	"github.com/shopchat-labs/shopchat-backend/internal/models"
	"github.com/shopchat-labs/shopchat-backend/internal/storage"
)

type checkoutFixture struct {
	store    *storage.MemoryStore
	catalog  *fakeCatalog
	payments *fakePayments
	orders   *fakeOrders
	checkout *CheckoutOrchestrator
}

func newCheckoutFixture(t *testing.T, codEnabled bool) *checkoutFixture {
	t.Helper()
	store := storage.NewMemoryStore()
	catalog := newFakeCatalog()
	catalog.shops["SHP001"] = &models.Shop{ShopID: "SHP001", Name: "Corner Store"}
	payments := &fakePayments{balance: decimal.NewFromInt(150)}
	orders := newFakeOrders()
	return &checkoutFixture{
		store:    store,
		catalog:  catalog,
		payments: payments,
		orders:   orders,
		checkout: NewCheckoutOrchestrator(store, catalog, payments, orders, codEnabled, "SHP001", logger.NewNop()),
	}
}

func (f *checkoutFixture) seedCustomer(t *testing.T) *models.Customer {
	t.Helper()
	customer, err := f.store.CreateCustomer(&models.Customer{
		WaID: "911234567890",
		Name: "Asha",
		Addresses: []models.Address{
			{Label: "Home", Line: "12 MG Road, Bengaluru"},
		},
		CardTokens: []models.CardToken{
			{Token: "tok_visa", Brand: "VISA", Last4: "4242"},
		},
	})
	require.NoError(t, err)
	return customer
}

func cartSession(customerID string) *models.Session {
	return &models.Session{
		WaID:           "911234567890",
		LinkedCustomer: customerID,
		CurrentShop:    "SHP001",
		CurrentFlow:    models.FlowNone,
		CartItems: []models.CartLine{
			{ProductID: "PRD001", Name: "Milk", Quantity: 2, UnitPrice: decimal.NewFromInt(50)},
		},
	}
}

func listRows(t *testing.T, msg *OutboundMessage) []ListRow {
	t.Helper()
	require.NotNil(t, msg.Interactive)
	require.Len(t, msg.Interactive.Action.Sections, 1)
	return msg.Interactive.Action.Sections[0].Rows
}

func rowIDs(rows []ListRow) []string {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids
}

func TestCheckoutStart(t *testing.T) {
	ctx := context.Background()

	t.Run("empty cart refuses checkout", func(t *testing.T) {
		f := newCheckoutFixture(t, true)
		session := &models.Session{WaID: "911234567890", CurrentFlow: models.FlowNone}

		replies, err := f.checkout.Start(ctx, session)
		require.NoError(t, err)
		require.Len(t, replies, 1)
		assert.Contains(t, replies[0].Text.Body, "cart is empty")
		assert.Equal(t, models.FlowNone, session.CurrentFlow)
		assert.Nil(t, session.CheckoutDraft)
	})

	t.Run("offers saved addresses, location and new", func(t *testing.T) {
		f := newCheckoutFixture(t, true)
		customer := f.seedCustomer(t)
		session := cartSession(customer.CustomerID)
		session.Location = &models.Location{Latitude: 12.97, Longitude: 77.59, Address: "Church Street"}

		replies, err := f.checkout.Start(ctx, session)
		require.NoError(t, err)
		require.Len(t, replies, 1)

		ids := rowIDs(listRows(t, replies[0]))
		assert.Contains(t, ids, "addr_"+customer.Addresses[0].AddressID)
		assert.Contains(t, ids, "addr_location")
		assert.Contains(t, ids, "addr_new")
		assert.LessOrEqual(t, len(ids), 7)

		assert.Equal(t, models.FlowAddressSelection, session.CurrentFlow)
		require.NotNil(t, session.CheckoutDraft)
		assert.True(t, session.CheckoutDraft.Total.Equal(decimal.NewFromInt(100)))
	})

	t.Run("caps saved addresses at five", func(t *testing.T) {
		f := newCheckoutFixture(t, true)
		addresses := make([]models.Address, 8)
		for i := range addresses {
			addresses[i] = models.Address{Label: "Addr", Line: "Line"}
		}
		customer, err := f.store.CreateCustomer(&models.Customer{WaID: "911234567890", Addresses: addresses})
		require.NoError(t, err)
		session := cartSession(customer.CustomerID)

		replies, err := f.checkout.Start(ctx, session)
		require.NoError(t, err)
		// 5 saved + the type-new row.
		assert.Len(t, listRows(t, replies[0]), 6)
	})
}

func TestPaymentEligibility(t *testing.T) {
	ctx := context.Background()

	startCheckout := func(t *testing.T, f *checkoutFixture) (*models.Session, *models.Customer) {
		customer := f.seedCustomer(t)
		session := cartSession(customer.CustomerID)
		_, err := f.checkout.Start(ctx, session)
		require.NoError(t, err)
		return session, customer
	}

	t.Run("wallet offered when balance covers total", func(t *testing.T) {
		f := newCheckoutFixture(t, true)
		f.payments.balance = decimal.NewFromInt(150)
		session, customer := startCheckout(t, f)

		replies, err := f.checkout.AddressSelected(ctx, session, customer.Addresses[0].AddressID)
		require.NoError(t, err)
		ids := rowIDs(listRows(t, replies[0]))
		assert.Contains(t, ids, payOptionWallet)
		assert.Contains(t, ids, payOptionCardPrefix+"tok_visa")
		assert.Contains(t, ids, payOptionCOD)
		assert.Equal(t, models.FlowPayment, session.CurrentFlow)
		assert.Equal(t, models.DeliverySavedAddress, session.CheckoutDraft.DeliveryKind)
	})

	t.Run("wallet withheld when balance is short", func(t *testing.T) {
		f := newCheckoutFixture(t, true)
		f.payments.balance = decimal.NewFromInt(50)
		session, _ := startCheckout(t, f)

		replies, err := f.checkout.AddressInput(ctx, session, "12 MG Road")
		require.NoError(t, err)
		ids := rowIDs(listRows(t, replies[0]))
		assert.NotContains(t, ids, payOptionWallet)
		assert.Contains(t, ids, payOptionCardPrefix+"tok_visa")
		assert.Contains(t, ids, payOptionCOD)
		assert.Equal(t, models.FlowPayment, session.CurrentFlow)
	})

	t.Run("exact balance is eligible", func(t *testing.T) {
		f := newCheckoutFixture(t, true)
		f.payments.balance = decimal.NewFromInt(100)
		session, _ := startCheckout(t, f)

		replies, err := f.checkout.AddressInput(ctx, session, "12 MG Road")
		require.NoError(t, err)
		assert.Contains(t, rowIDs(listRows(t, replies[0])), payOptionWallet)
	})

	t.Run("platform toggle disables COD", func(t *testing.T) {
		f := newCheckoutFixture(t, false)
		session, _ := startCheckout(t, f)

		replies, err := f.checkout.AddressInput(ctx, session, "12 MG Road")
		require.NoError(t, err)
		assert.NotContains(t, rowIDs(listRows(t, replies[0])), payOptionCOD)
	})

	t.Run("shop flag disables COD", func(t *testing.T) {
		f := newCheckoutFixture(t, true)
		disabled := true
		f.catalog.shops["SHP001"].CODDisabled = &disabled
		session, _ := startCheckout(t, f)

		replies, err := f.checkout.AddressInput(ctx, session, "12 MG Road")
		require.NoError(t, err)
		assert.NotContains(t, rowIDs(listRows(t, replies[0])), payOptionCOD)
	})

	t.Run("unreachable catalog withholds COD", func(t *testing.T) {
		f := newCheckoutFixture(t, true)
		f.catalog.shopErr = errors.New("catalog down")
		session, _ := startCheckout(t, f)

		replies, err := f.checkout.AddressInput(ctx, session, "12 MG Road")
		require.NoError(t, err)
		assert.NotContains(t, rowIDs(listRows(t, replies[0])), payOptionCOD)
	})

	t.Run("no eligible method is an explicit failure", func(t *testing.T) {
		f := newCheckoutFixture(t, false)
		customer, err := f.store.CreateCustomer(&models.Customer{WaID: "911234567890"})
		require.NoError(t, err)
		f.payments.balance = decimal.NewFromInt(1)
		session := cartSession(customer.CustomerID)
		_, err = f.checkout.Start(ctx, session)
		require.NoError(t, err)

		replies, err := f.checkout.AddressInput(ctx, session, "12 MG Road")
		require.NoError(t, err)
		require.Len(t, replies, 1)
		assert.Contains(t, replies[0].Text.Body, "No payment method")
		// State stays in address input so the user is not stuck mid-payment.
		assert.NotEqual(t, models.FlowPayment, session.CurrentFlow)
	})
}

func TestPaymentSelected(t *testing.T) {
	ctx := context.Background()

	paymentSession := func(t *testing.T, f *checkoutFixture) *models.Session {
		customer := f.seedCustomer(t)
		session := cartSession(customer.CustomerID)
		_, err := f.checkout.Start(ctx, session)
		require.NoError(t, err)
		_, err = f.checkout.AddressInput(ctx, session, "12 MG Road")
		require.NoError(t, err)
		return session
	}

	t.Run("eligible option moves to confirm", func(t *testing.T) {
		f := newCheckoutFixture(t, true)
		session := paymentSession(t, f)

		replies, err := f.checkout.PaymentSelected(ctx, session, payOptionWallet)
		require.NoError(t, err)
		assert.Equal(t, models.FlowConfirm, session.CurrentFlow)
		assert.Equal(t, models.PaymentWallet, session.CheckoutDraft.PaymentMethod)
		require.NotNil(t, replies[0].Interactive)
		assert.Len(t, replies[0].Interactive.Action.Buttons, 2)
	})

	t.Run("card option captures the token", func(t *testing.T) {
		f := newCheckoutFixture(t, true)
		session := paymentSession(t, f)

		_, err := f.checkout.PaymentSelected(ctx, session, payOptionCardPrefix+"tok_visa")
		require.NoError(t, err)
		assert.Equal(t, models.PaymentCard, session.CheckoutDraft.PaymentMethod)
		assert.Equal(t, "tok_visa", session.CheckoutDraft.CardToken)
	})

	t.Run("option outside the offered set is rejected", func(t *testing.T) {
		f := newCheckoutFixture(t, false)
		f.payments.balance = decimal.NewFromInt(1)
		session := paymentSession(t, f)

		replies, err := f.checkout.PaymentSelected(ctx, session, payOptionCOD)
		require.NoError(t, err)
		assert.Contains(t, replies[0].Text.Body, "isn't available")
		assert.NotEqual(t, models.FlowConfirm, session.CurrentFlow)
	})
}

func TestPlaceOrder(t *testing.T) {
	ctx := context.Background()

	confirmSession := func(t *testing.T, f *checkoutFixture, option string) *models.Session {
		customer := f.seedCustomer(t)
		session := cartSession(customer.CustomerID)
		_, err := f.checkout.Start(ctx, session)
		require.NoError(t, err)
		_, err = f.checkout.AddressInput(ctx, session, "12 MG Road")
		require.NoError(t, err)
		_, err = f.checkout.PaymentSelected(ctx, session, option)
		require.NoError(t, err)
		return session
	}

	t.Run("wallet order debits and resets the session", func(t *testing.T) {
		f := newCheckoutFixture(t, true)
		session := confirmSession(t, f, payOptionWallet)

		replies, err := f.checkout.PlaceOrder(ctx, session)
		require.NoError(t, err)
		assert.Contains(t, replies[0].Text.Body, "placed")

		require.Len(t, f.orders.created, 1)
		assert.NotEmpty(t, f.orders.created[0].RequestID)
		assert.Len(t, f.payments.debits, 1)
		assert.Equal(t, models.PaymentStatusPaid, f.orders.statuses["ORD00001"])

		assert.Empty(t, session.CartItems)
		assert.Nil(t, session.CheckoutDraft)
		assert.Equal(t, models.FlowNone, session.CurrentFlow)
	})

	t.Run("cod order stays unpaid", func(t *testing.T) {
		f := newCheckoutFixture(t, true)
		session := confirmSession(t, f, payOptionCOD)

		_, err := f.checkout.PlaceOrder(ctx, session)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusUnpaid, f.orders.statuses["ORD00001"])
		assert.Empty(t, f.payments.debits)
	})

	t.Run("order creation failure keeps cart and state", func(t *testing.T) {
		f := newCheckoutFixture(t, true)
		session := confirmSession(t, f, payOptionWallet)
		f.orders.createErr = errors.New("order service down")

		replies, err := f.checkout.PlaceOrder(ctx, session)
		require.NoError(t, err)
		assert.Contains(t, replies[0].Text.Body, "couldn't place your order")
		assert.NotEmpty(t, session.CartItems)
		assert.Equal(t, models.FlowConfirm, session.CurrentFlow)
	})

	t.Run("payment failure cancels the order and keeps the cart", func(t *testing.T) {
		f := newCheckoutFixture(t, true)
		session := confirmSession(t, f, payOptionWallet)
		f.payments.debitErr = errors.New("insufficient funds")

		replies, err := f.checkout.PlaceOrder(ctx, session)
		require.NoError(t, err)
		assert.Contains(t, replies[0].Text.Body, "Payment didn't go through")

		assert.Equal(t, []string{"ORD00001"}, f.orders.cancelled)
		assert.NotEmpty(t, session.CartItems)
		assert.Equal(t, models.FlowConfirm, session.CurrentFlow)
	})
}

func TestCancelKeepsCart(t *testing.T) {
	f := newCheckoutFixture(t, true)
	session := cartSession("CUS00001")
	session.CurrentFlow = models.FlowPayment
	session.CheckoutDraft = &models.CheckoutDraft{Total: decimal.NewFromInt(100)}

	replies := f.checkout.Cancel(session)
	require.Len(t, replies, 1)
	assert.Equal(t, models.FlowNone, session.CurrentFlow)
	assert.Nil(t, session.CheckoutDraft)
	assert.NotEmpty(t, session.CartItems)
}
