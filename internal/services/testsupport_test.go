package services

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/shopchat-labs/shopchat-backend/internal/models"
)

// Shared fakes for the service tests.

type fakeCatalog struct {
	shops      map[string]*models.Shop
	categories map[string][]models.Category
	products   map[string]*models.Product
	search     map[string][]models.Product

	shopErr   error
	searchErr error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		shops:      map[string]*models.Shop{},
		categories: map[string][]models.Category{},
		products:   map[string]*models.Product{},
		search:     map[string][]models.Product{},
	}
}

func (f *fakeCatalog) ListShops(ctx context.Context) ([]models.Shop, error) {
	shops := []models.Shop{}
	for _, s := range f.shops {
		shops = append(shops, *s)
	}
	return shops, nil
}

func (f *fakeCatalog) GetShop(ctx context.Context, shopID string) (*models.Shop, error) {
	if f.shopErr != nil {
		return nil, f.shopErr
	}
	shop, ok := f.shops[shopID]
	if !ok {
		return nil, errors.New("shop not found")
	}
	return shop, nil
}

func (f *fakeCatalog) ListCategories(ctx context.Context, shopID string) ([]models.Category, error) {
	return f.categories[shopID], nil
}

func (f *fakeCatalog) ListProducts(ctx context.Context, shopID, categoryID string) ([]models.Product, error) {
	products := []models.Product{}
	for _, p := range f.products {
		if p.ShopID == shopID && p.CategoryID == categoryID {
			products = append(products, *p)
		}
	}
	return products, nil
}

func (f *fakeCatalog) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	product, ok := f.products[productID]
	if !ok {
		return nil, errors.New("product not found")
	}
	return product, nil
}

func (f *fakeCatalog) SearchProducts(ctx context.Context, shopID, query string) ([]models.Product, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.search[query], nil
}

type fakePayments struct {
	balance    decimal.Decimal
	balanceErr error
	debitErr   error
	chargeErr  error

	debits  []string
	charges []string
}

func (f *fakePayments) WalletBalance(ctx context.Context, customerID string) (decimal.Decimal, error) {
	if f.balanceErr != nil {
		return decimal.Zero, f.balanceErr
	}
	return f.balance, nil
}

func (f *fakePayments) DebitWallet(ctx context.Context, customerID string, amount decimal.Decimal, reference string) error {
	if f.debitErr != nil {
		return f.debitErr
	}
	f.debits = append(f.debits, reference)
	return nil
}

func (f *fakePayments) ChargeToken(ctx context.Context, token string, amount decimal.Decimal, reference string) error {
	if f.chargeErr != nil {
		return f.chargeErr
	}
	f.charges = append(f.charges, token)
	return nil
}

type fakeOrders struct {
	createErr error
	nextOrder *models.Order
	lastOrder *models.Order

	created   []*models.OrderRequest
	cancelled []string
	statuses  map[string]string
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{statuses: map[string]string{}}
}

func (f *fakeOrders) CreateOrder(ctx context.Context, req *models.OrderRequest) (*models.Order, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, req)
	if f.nextOrder != nil {
		return f.nextOrder, nil
	}
	return &models.Order{OrderID: "ORD00001", Status: models.OrderStatusCreated, Total: req.Total}, nil
}

func (f *fakeOrders) CancelOrder(ctx context.Context, orderID, reason string) error {
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *fakeOrders) SetPaymentStatus(ctx context.Context, orderID, status string) error {
	f.statuses[orderID] = status
	return nil
}

func (f *fakeOrders) LastOrder(ctx context.Context, waID string) (*models.Order, error) {
	if f.lastOrder == nil {
		return nil, errors.New("no orders")
	}
	return f.lastOrder, nil
}

type fakeGateway struct {
	mu   sync.Mutex
	sent []*OutboundMessage
}

func (f *fakeGateway) Send(ctx context.Context, msg *OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeGateway) messages() []*OutboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*OutboundMessage{}, f.sent...)
}

// fakeEmbedder places each intent on its own axis so cosine similarity is 1
// for a matching query and 0 for everything else.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func newFakeEmbedder() *fakeEmbedder {
	axes := map[string]int{
		"buy": 0, "find": 1, "view_cart": 2, "check_wallet": 3, "track": 4, "greeting": 5,
	}
	vectors := map[string][]float32{}
	for intent, phrases := range intentExamples {
		for _, phrase := range phrases {
			vectors[phrase] = axisVector(axes[intent])
		}
	}
	return &fakeEmbedder{vectors: vectors}
}

func axisVector(axis int) []float32 {
	v := make([]float32, 7)
	v[axis] = 1
	return v
}

func (f *fakeEmbedder) learn(query string, axis int) {
	f.vectors[query] = axisVector(axis)
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return axisVector(6), nil
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := f.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
