package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shopchat-labs/shopchat-backend/internal/models"
	"github.com/shopchat-labs/shopchat-backend/internal/storage"
)

// SessionManager owns all conversational session state. Every mutation goes
// through Update, which holds a per-wa_id lock across the load-modify-save
// cycle: webhook deliveries for the same conversation carry no ordering
// guarantee, so the read-modify-write must be serialized here.
type SessionManager struct {
	store  storage.Store
	logger *zap.Logger
	ttl    time.Duration

	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock is a keyed mutex entry; evicted when the last holder releases it.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewSessionManager creates a new session manager
func NewSessionManager(store storage.Store, logger *zap.Logger, ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SessionManager{
		store:  store,
		logger: logger,
		ttl:    ttl,
		locks:  make(map[string]*sessionLock),
	}
}

func (sm *SessionManager) acquire(waID string) *sessionLock {
	sm.mu.Lock()
	lock, exists := sm.locks[waID]
	if !exists {
		lock = &sessionLock{}
		sm.locks[waID] = lock
	}
	lock.refs++
	sm.mu.Unlock()

	lock.mu.Lock()
	return lock
}

func (sm *SessionManager) release(waID string, lock *sessionLock) {
	lock.mu.Unlock()

	sm.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(sm.locks, waID)
	}
	sm.mu.Unlock()
}

// Update loads (or creates) the session for waID, applies fn, refreshes the
// TTL and saves, all under the per-wa_id lock. An expired session is
// discarded and fn sees a fresh one. If fn returns an error nothing is saved.
func (sm *SessionManager) Update(ctx context.Context, waID string, fn func(session *models.Session) error) (*models.Session, error) {
	if waID == "" {
		return nil, errors.New("wa_id is empty")
	}

	lock := sm.acquire(waID)
	defer sm.release(waID, lock)

	session, err := sm.load(waID)
	if err != nil {
		return nil, err
	}

	if err := fn(session); err != nil {
		return nil, err
	}

	session.ExpiresAt = time.Now().Add(sm.ttl)
	if err := sm.store.SaveSession(session); err != nil {
		return nil, fmt.Errorf("save session %s: %w", waID, err)
	}
	return session, nil
}

// Peek returns a read-only view of the session without refreshing the TTL.
func (sm *SessionManager) Peek(waID string) (*models.Session, error) {
	lock := sm.acquire(waID)
	defer sm.release(waID, lock)
	return sm.load(waID)
}

// load fetches the stored session, applying lazy expiry. Callers must hold
// the per-wa_id lock.
func (sm *SessionManager) load(waID string) (*models.Session, error) {
	session, err := sm.store.GetSessionByWaID(waID)
	if errors.Is(err, storage.ErrNotFound) {
		return sm.fresh(waID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", waID, err)
	}

	if time.Now().After(session.ExpiresAt) {
		sm.logger.Info("session expired, starting fresh", zap.String("wa_id", waID))
		fresh := sm.fresh(waID)
		fresh.ID = session.ID
		fresh.ProfileName = session.ProfileName
		fresh.LinkedCustomer = session.LinkedCustomer
		return fresh, nil
	}
	return session, nil
}

func (sm *SessionManager) fresh(waID string) *models.Session {
	return &models.Session{
		WaID:        waID,
		CurrentFlow: models.FlowNone,
		CartItems:   []models.CartLine{},
		ExpiresAt:   time.Now().Add(sm.ttl),
	}
}

// ReapExpired deletes sessions whose TTL has lapsed. Called periodically by
// the session reaper job; lazy expiry in load covers the window in between.
func (sm *SessionManager) ReapExpired(ctx context.Context) (int, error) {
	expired, err := sm.store.GetExpiredSessions(time.Now())
	if err != nil {
		return 0, fmt.Errorf("list expired sessions: %w", err)
	}

	reaped := 0
	for _, session := range expired {
		if ctx.Err() != nil {
			return reaped, ctx.Err()
		}
		lock := sm.acquire(session.WaID)
		// Re-check under the lock; the session may have been refreshed.
		current, err := sm.store.GetSessionByWaID(session.WaID)
		if err == nil && time.Now().After(current.ExpiresAt) {
			if err := sm.store.DeleteSession(session.WaID); err != nil {
				sm.logger.Warn("failed to reap session", zap.String("wa_id", session.WaID), zap.Error(err))
			} else {
				reaped++
			}
		}
		sm.release(session.WaID, lock)
	}
	return reaped, nil
}
