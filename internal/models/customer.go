package models

import (
	"fmt"

	"gorm.io/gorm"
)

// Customer is the platform profile linked to a WhatsApp conversation.
type Customer struct {
	gorm.Model
	CustomerID string `gorm:"unique;not null"`
	WaID       string `gorm:"uniqueIndex;not null"`
	Name       string
	Addresses  []Address   `gorm:"foreignKey:CustomerID;references:CustomerID"`
	CardTokens []CardToken `gorm:"foreignKey:CustomerID;references:CustomerID"`
}

// BeforeCreate generates CustomerID
func (c *Customer) BeforeCreate(tx *gorm.DB) error {
	if c.CustomerID == "" {
		var count int64
		tx.Model(&Customer{}).Count(&count)
		c.CustomerID = fmt.Sprintf("CUS%05d", count+1)
	}
	return nil
}

// Address is a saved delivery address.
type Address struct {
	gorm.Model
	AddressID  string `gorm:"unique;not null"`
	CustomerID string `gorm:"index;not null"`
	Label      string
	Line       string `gorm:"not null"`
	City       string
	IsDefault  bool `gorm:"default:false"`
}

// BeforeCreate generates AddressID
func (a *Address) BeforeCreate(tx *gorm.DB) error {
	if a.AddressID == "" {
		var count int64
		tx.Model(&Address{}).Count(&count)
		a.AddressID = fmt.Sprintf("ADR%05d", count+1)
	}
	return nil
}

// CardToken is a stored payment instrument reference. The raw card never
// touches this system; the token is only meaningful to the payment provider.
type CardToken struct {
	gorm.Model
	CustomerID string `gorm:"index;not null"`
	Token      string `gorm:"unique;not null"`
	Brand      string
	Last4      string
}

// DisplayName renders a card token for chat, e.g. "VISA •••• 4242".
func (t CardToken) DisplayName() string {
	if t.Brand == "" && t.Last4 == "" {
		return "Saved card"
	}
	return fmt.Sprintf("%s •••• %s", t.Brand, t.Last4)
}
