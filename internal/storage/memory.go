package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopchat-labs/shopchat-backend/internal/models"
)

// MemoryStore holds all data in memory, for tests and local development.
type MemoryStore struct {
	sessions  map[string]*models.Session
	customers map[string]*models.Customer
	addresses map[string]*models.Address
	cards     map[string]*models.CardToken

	sessionMu  sync.RWMutex
	customerMu sync.RWMutex

	customerCounter int
	addressCounter  int
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[string]*models.Session),
		customers: make(map[string]*models.Customer),
		addresses: make(map[string]*models.Address),
		cards:     make(map[string]*models.CardToken),
	}
}

// Session operations

func (m *MemoryStore) GetSessionByWaID(waID string) (*models.Session, error) {
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()

	session, exists := m.sessions[waID]
	if !exists {
		return nil, ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (m *MemoryStore) SaveSession(session *models.Session) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	copied := *session
	m.sessions[session.WaID] = &copied
	return nil
}

func (m *MemoryStore) DeleteSession(waID string) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	delete(m.sessions, waID)
	return nil
}

func (m *MemoryStore) GetExpiredSessions(cutoff time.Time) ([]*models.Session, error) {
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()

	expired := []*models.Session{}
	for _, session := range m.sessions {
		if session.ExpiresAt.Before(cutoff) {
			copied := *session
			expired = append(expired, &copied)
		}
	}
	return expired, nil
}

// Customer operations

func (m *MemoryStore) GetCustomer(customerID string) (*models.Customer, error) {
	m.customerMu.RLock()
	defer m.customerMu.RUnlock()

	for _, customer := range m.customers {
		if customer.CustomerID == customerID {
			return customer, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) GetCustomerByWaID(waID string) (*models.Customer, error) {
	m.customerMu.RLock()
	defer m.customerMu.RUnlock()

	customer, exists := m.customers[waID]
	if !exists {
		return nil, ErrNotFound
	}
	return customer, nil
}

func (m *MemoryStore) CreateCustomer(customer *models.Customer) (*models.Customer, error) {
	m.customerMu.Lock()
	defer m.customerMu.Unlock()

	if customer.CustomerID == "" {
		m.customerCounter++
		customer.CustomerID = fmt.Sprintf("CUS%05d", m.customerCounter)
	}
	m.customers[customer.WaID] = customer

	for i := range customer.Addresses {
		addr := &customer.Addresses[i]
		if addr.AddressID == "" {
			m.addressCounter++
			addr.AddressID = fmt.Sprintf("ADR%05d", m.addressCounter)
		}
		addr.CustomerID = customer.CustomerID
		m.addresses[addr.AddressID] = addr
	}
	for i := range customer.CardTokens {
		card := &customer.CardTokens[i]
		card.CustomerID = customer.CustomerID
		m.cards[card.Token] = card
	}

	return customer, nil
}

// Address operations

func (m *MemoryStore) GetAddresses(customerID string) ([]*models.Address, error) {
	m.customerMu.RLock()
	defer m.customerMu.RUnlock()

	addresses := []*models.Address{}
	for _, addr := range m.addresses {
		if addr.CustomerID == customerID {
			addresses = append(addresses, addr)
		}
	}
	return addresses, nil
}

func (m *MemoryStore) GetAddress(addressID string) (*models.Address, error) {
	m.customerMu.RLock()
	defer m.customerMu.RUnlock()

	addr, exists := m.addresses[addressID]
	if !exists {
		return nil, ErrNotFound
	}
	return addr, nil
}

// Card token operations

func (m *MemoryStore) GetCardTokens(customerID string) ([]*models.CardToken, error) {
	m.customerMu.RLock()
	defer m.customerMu.RUnlock()

	cards := []*models.CardToken{}
	for _, card := range m.cards {
		if card.CustomerID == customerID {
			cards = append(cards, card)
		}
	}
	return cards, nil
}

func (m *MemoryStore) GetCardToken(token string) (*models.CardToken, error) {
	m.customerMu.RLock()
	defer m.customerMu.RUnlock()

	card, exists := m.cards[token]
	if !exists {
		return nil, ErrNotFound
	}
	return card, nil
}
