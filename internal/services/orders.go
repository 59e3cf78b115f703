package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopchat-labs/shopchat-backend/internal/models"
)

// OrderService is the contract against the external order persistence
// service.
type OrderService interface {
	CreateOrder(ctx context.Context, req *models.OrderRequest) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID, reason string) error
	SetPaymentStatus(ctx context.Context, orderID, status string) error
	LastOrder(ctx context.Context, waID string) (*models.Order, error)
}

// HTTPOrderService talks to the Order Service over HTTP.
type HTTPOrderService struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPOrderService creates an order service client
func NewHTTPOrderService(baseURL string) *HTTPOrderService {
	return &HTTPOrderService{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func (o *HTTPOrderService) CreateOrder(ctx context.Context, req *models.OrderRequest) (*models.Order, error) {
	var order models.Order
	err := doJSON(ctx, o.httpClient, http.MethodPost, o.baseURL+"/orders", req, &order)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (o *HTTPOrderService) CancelOrder(ctx context.Context, orderID, reason string) error {
	return doJSON(ctx, o.httpClient, http.MethodPost,
		fmt.Sprintf("%s/orders/%s/cancel", o.baseURL, url.PathEscape(orderID)),
		cancelRequest{Reason: reason}, nil)
}

type paymentStatusRequest struct {
	Status string `json:"status"`
}

func (o *HTTPOrderService) SetPaymentStatus(ctx context.Context, orderID, status string) error {
	return doJSON(ctx, o.httpClient, http.MethodPut,
		fmt.Sprintf("%s/orders/%s/payment-status", o.baseURL, url.PathEscape(orderID)),
		paymentStatusRequest{Status: status}, nil)
}

func (o *HTTPOrderService) LastOrder(ctx context.Context, waID string) (*models.Order, error) {
	var order models.Order
	err := doJSON(ctx, o.httpClient, http.MethodGet,
		fmt.Sprintf("%s/orders/last?wa_id=%s", o.baseURL, url.QueryEscape(waID)), nil, &order)
	if err != nil {
		return nil, err
	}
	return &order, nil
}
