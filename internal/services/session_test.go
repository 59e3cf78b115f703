package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopchat-labs/shopchat-backend/internal/logger"
	"github.com/shopchat-labs/shopchat-backend/internal/models"
	"github.com/shopchat-labs/shopchat-backend/internal/storage"
)

func TestSessionUpdatePersists(t *testing.T) {
	store := storage.NewMemoryStore()
	sm := NewSessionManager(store, logger.NewNop(), time.Minute)

	session, err := sm.Update(context.Background(), "911234567890", func(s *models.Session) error {
		s.ProfileName = "Asha"
		s.CurrentShop = "SHP001"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Asha", session.ProfileName)

	loaded, err := sm.Peek("911234567890")
	require.NoError(t, err)
	assert.Equal(t, "Asha", loaded.ProfileName)
	assert.Equal(t, "SHP001", loaded.CurrentShop)
	assert.Equal(t, models.FlowNone, loaded.CurrentFlow)
}

func TestSessionUpdateErrorDiscardsChanges(t *testing.T) {
	store := storage.NewMemoryStore()
	sm := NewSessionManager(store, logger.NewNop(), time.Minute)
	ctx := context.Background()

	_, err := sm.Update(ctx, "wa1", func(s *models.Session) error {
		s.ProfileName = "keep"
		return nil
	})
	require.NoError(t, err)

	_, err = sm.Update(ctx, "wa1", func(s *models.Session) error {
		s.ProfileName = "discard"
		return assert.AnError
	})
	require.Error(t, err)

	loaded, err := sm.Peek("wa1")
	require.NoError(t, err)
	assert.Equal(t, "keep", loaded.ProfileName)
}

func TestSessionUpdateSerialized(t *testing.T) {
	store := storage.NewMemoryStore()
	sm := NewSessionManager(store, logger.NewNop(), time.Minute)
	ctx := context.Background()

	const workers = 40
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sm.Update(ctx, "wa-race", func(s *models.Session) error {
				s.CartItems = append(s.CartItems, models.CartLine{
					ProductID: "PRD001",
					Quantity:  1,
					UnitPrice: decimal.NewFromInt(10),
				})
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	loaded, err := sm.Peek("wa-race")
	require.NoError(t, err)
	// Every read-modify-write must have landed; lost updates would leave fewer lines.
	assert.Len(t, loaded.CartItems, workers)
}

func TestSessionLazyExpiry(t *testing.T) {
	store := storage.NewMemoryStore()
	sm := NewSessionManager(store, logger.NewNop(), time.Minute)

	require.NoError(t, store.SaveSession(&models.Session{
		WaID:           "wa-old",
		ProfileName:    "Ravi",
		LinkedCustomer: "CUS00001",
		CurrentFlow:    models.FlowPayment,
		CartItems:      []models.CartLine{{ProductID: "PRD001", Quantity: 2}},
		ExpiresAt:      time.Now().Add(-time.Hour),
	}))

	loaded, err := sm.Peek("wa-old")
	require.NoError(t, err)
	assert.Equal(t, models.FlowNone, loaded.CurrentFlow)
	assert.Empty(t, loaded.CartItems)
	// Identity survives expiry; only conversational state resets.
	assert.Equal(t, "Ravi", loaded.ProfileName)
	assert.Equal(t, "CUS00001", loaded.LinkedCustomer)
}

func TestReapExpired(t *testing.T) {
	store := storage.NewMemoryStore()
	sm := NewSessionManager(store, logger.NewNop(), time.Minute)

	require.NoError(t, store.SaveSession(&models.Session{
		WaID:      "wa-stale",
		ExpiresAt: time.Now().Add(-time.Hour),
	}))
	require.NoError(t, store.SaveSession(&models.Session{
		WaID:      "wa-live",
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	reaped, err := sm.ReapExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	_, err = store.GetSessionByWaID("wa-stale")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetSessionByWaID("wa-live")
	assert.NoError(t, err)
}
