package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentProvider executes payment legs; balances and charges live in the
// external provider, this engine only asks and instructs.
type PaymentProvider interface {
	WalletBalance(ctx context.Context, customerID string) (decimal.Decimal, error)
	DebitWallet(ctx context.Context, customerID string, amount decimal.Decimal, reference string) error
	ChargeToken(ctx context.Context, token string, amount decimal.Decimal, reference string) error
}

// HTTPPaymentProvider talks to the Payment Provider over HTTP.
type HTTPPaymentProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPPaymentProvider creates a payment provider client
func NewHTTPPaymentProvider(baseURL string) *HTTPPaymentProvider {
	return &HTTPPaymentProvider{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

type walletBalanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

func (p *HTTPPaymentProvider) WalletBalance(ctx context.Context, customerID string) (decimal.Decimal, error) {
	var resp walletBalanceResponse
	err := doJSON(ctx, p.httpClient, http.MethodGet,
		fmt.Sprintf("%s/wallets/%s", p.baseURL, url.PathEscape(customerID)), nil, &resp)
	if err != nil {
		return decimal.Zero, err
	}
	return resp.Balance, nil
}

type debitRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
}

func (p *HTTPPaymentProvider) DebitWallet(ctx context.Context, customerID string, amount decimal.Decimal, reference string) error {
	return doJSON(ctx, p.httpClient, http.MethodPost,
		fmt.Sprintf("%s/wallets/%s/debit", p.baseURL, url.PathEscape(customerID)),
		debitRequest{Amount: amount, Reference: reference}, nil)
}

type chargeRequest struct {
	Token     string          `json:"token"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
}

func (p *HTTPPaymentProvider) ChargeToken(ctx context.Context, token string, amount decimal.Decimal, reference string) error {
	return doJSON(ctx, p.httpClient, http.MethodPost, p.baseURL+"/charges",
		chargeRequest{Token: token, Amount: amount, Reference: reference}, nil)
}
