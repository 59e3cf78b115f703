package storage

import (
	"errors"
	"time"

	"github.com/shopchat-labs/shopchat-backend/internal/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Store defines the interface for storage operations
type Store interface {
	// Session operations
	GetSessionByWaID(waID string) (*models.Session, error)
	SaveSession(session *models.Session) error
	DeleteSession(waID string) error
	GetExpiredSessions(cutoff time.Time) ([]*models.Session, error)

	// Customer operations
	GetCustomer(customerID string) (*models.Customer, error)
	GetCustomerByWaID(waID string) (*models.Customer, error)
	CreateCustomer(customer *models.Customer) (*models.Customer, error)

	// Address operations
	GetAddresses(customerID string) ([]*models.Address, error)
	GetAddress(addressID string) (*models.Address, error)

	// Card token operations
	GetCardTokens(customerID string) ([]*models.CardToken, error)
	GetCardToken(token string) (*models.CardToken, error)
}
