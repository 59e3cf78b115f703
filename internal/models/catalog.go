package models

import "github.com/shopspring/decimal"

// Catalog contracts. Shops, categories and products live in the external
// Catalog Service; these are the wire shapes this engine consumes.

// Shop is a seller storefront.
type Shop struct {
	ShopID string `json:"shop_id"`
	Name   string `json:"name"`
	// CODDisabled is a tri-state shop flag: nil means the shop never set it
	// and COD stays enabled.
	CODDisabled *bool `json:"cod_disabled,omitempty"`
}

// CODEnabled resolves the shop-level COD flag; unset defaults to enabled.
func (s Shop) CODEnabled() bool {
	return s.CODDisabled == nil || !*s.CODDisabled
}

// Category groups products inside a shop.
type Category struct {
	CategoryID string `json:"category_id"`
	ShopID     string `json:"shop_id"`
	Name       string `json:"name"`
}

// Product is a purchasable catalog item.
type Product struct {
	ProductID   string          `json:"product_id"`
	ShopID      string          `json:"shop_id"`
	CategoryID  string          `json:"category_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url,omitempty"`
	InStock     bool            `json:"in_stock"`
}
