package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopchat-labs/shopchat-backend/internal/models"
)

// CatalogService is the contract against the external product/shop catalog.
type CatalogService interface {
	ListShops(ctx context.Context) ([]models.Shop, error)
	GetShop(ctx context.Context, shopID string) (*models.Shop, error)
	ListCategories(ctx context.Context, shopID string) ([]models.Category, error)
	ListProducts(ctx context.Context, shopID, categoryID string) ([]models.Product, error)
	GetProduct(ctx context.Context, productID string) (*models.Product, error)
	SearchProducts(ctx context.Context, shopID, query string) ([]models.Product, error)
}

// HTTPCatalogService talks to the Catalog Service over HTTP.
type HTTPCatalogService struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPCatalogService creates a catalog client
func NewHTTPCatalogService(baseURL string) *HTTPCatalogService {
	return &HTTPCatalogService{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *HTTPCatalogService) ListShops(ctx context.Context) ([]models.Shop, error) {
	var shops []models.Shop
	err := doJSON(ctx, c.httpClient, http.MethodGet, c.baseURL+"/shops", nil, &shops)
	return shops, err
}

func (c *HTTPCatalogService) GetShop(ctx context.Context, shopID string) (*models.Shop, error) {
	var shop models.Shop
	err := doJSON(ctx, c.httpClient, http.MethodGet,
		fmt.Sprintf("%s/shops/%s", c.baseURL, url.PathEscape(shopID)), nil, &shop)
	if err != nil {
		return nil, err
	}
	return &shop, nil
}

func (c *HTTPCatalogService) ListCategories(ctx context.Context, shopID string) ([]models.Category, error) {
	var categories []models.Category
	err := doJSON(ctx, c.httpClient, http.MethodGet,
		fmt.Sprintf("%s/shops/%s/categories", c.baseURL, url.PathEscape(shopID)), nil, &categories)
	return categories, err
}

func (c *HTTPCatalogService) ListProducts(ctx context.Context, shopID, categoryID string) ([]models.Product, error) {
	var products []models.Product
	err := doJSON(ctx, c.httpClient, http.MethodGet,
		fmt.Sprintf("%s/shops/%s/categories/%s/products",
			c.baseURL, url.PathEscape(shopID), url.PathEscape(categoryID)), nil, &products)
	return products, err
}

func (c *HTTPCatalogService) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	var product models.Product
	err := doJSON(ctx, c.httpClient, http.MethodGet,
		fmt.Sprintf("%s/products/%s", c.baseURL, url.PathEscape(productID)), nil, &product)
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (c *HTTPCatalogService) SearchProducts(ctx context.Context, shopID, query string) ([]models.Product, error) {
	var products []models.Product
	endpoint := fmt.Sprintf("%s/shops/%s/products/search?q=%s",
		c.baseURL, url.PathEscape(shopID), url.QueryEscape(query))
	err := doJSON(ctx, c.httpClient, http.MethodGet, endpoint, nil, &products)
	return products, err
}
