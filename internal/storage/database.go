package storage

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/shopchat-labs/shopchat-backend/internal/models"
)

// DatabaseStore persists data in PostgreSQL via GORM.
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore creates a GORM-backed store
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

// Session operations

func (d *DatabaseStore) GetSessionByWaID(waID string) (*models.Session, error) {
	var session models.Session
	err := d.db.Where("wa_id = ?", waID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (d *DatabaseStore) SaveSession(session *models.Session) error {
	return d.db.Save(session).Error
}

func (d *DatabaseStore) DeleteSession(waID string) error {
	return d.db.Where("wa_id = ?", waID).Delete(&models.Session{}).Error
}

func (d *DatabaseStore) GetExpiredSessions(cutoff time.Time) ([]*models.Session, error) {
	var sessions []*models.Session
	err := d.db.Where("expires_at < ?", cutoff).Find(&sessions).Error
	return sessions, err
}

// Customer operations

func (d *DatabaseStore) GetCustomer(customerID string) (*models.Customer, error) {
	var customer models.Customer
	err := d.db.Preload("Addresses").Preload("CardTokens").
		Where("customer_id = ?", customerID).First(&customer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (d *DatabaseStore) GetCustomerByWaID(waID string) (*models.Customer, error) {
	var customer models.Customer
	err := d.db.Preload("Addresses").Preload("CardTokens").
		Where("wa_id = ?", waID).First(&customer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (d *DatabaseStore) CreateCustomer(customer *models.Customer) (*models.Customer, error) {
	if err := d.db.Create(customer).Error; err != nil {
		return nil, err
	}
	return customer, nil
}

// Address operations

func (d *DatabaseStore) GetAddresses(customerID string) ([]*models.Address, error) {
	var addresses []*models.Address
	err := d.db.Where("customer_id = ?", customerID).Order("is_default desc, created_at").
		Find(&addresses).Error
	return addresses, err
}

func (d *DatabaseStore) GetAddress(addressID string) (*models.Address, error) {
	var address models.Address
	err := d.db.Where("address_id = ?", addressID).First(&address).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &address, nil
}

// Card token operations

func (d *DatabaseStore) GetCardTokens(customerID string) ([]*models.CardToken, error) {
	var cards []*models.CardToken
	err := d.db.Where("customer_id = ?", customerID).Find(&cards).Error
	return cards, err
}

func (d *DatabaseStore) GetCardToken(token string) (*models.CardToken, error) {
	var card models.CardToken
	err := d.db.Where("token = ?", token).First(&card).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &card, nil
}
