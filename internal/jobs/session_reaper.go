package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shopchat-labs/shopchat-backend/internal/services"
)

// SessionReaper periodically deletes sessions that sat past their TTL.
// Expiry is also applied lazily on load, so the reaper only keeps the store
// from accumulating sessions of users who never came back.
type SessionReaper struct {
	sessions *services.SessionManager
	interval time.Duration
	logger   *zap.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewSessionReaper creates a new session reaper
func NewSessionReaper(sessions *services.SessionManager, interval time.Duration, logger *zap.Logger) *SessionReaper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &SessionReaper{
		sessions: sessions,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the reap loop in the background.
func (r *SessionReaper) Start() {
	go r.loop()
	r.logger.Info("session reaper started", zap.Duration("interval", r.interval))
}

// Stop halts the reap loop.
func (r *SessionReaper) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

func (r *SessionReaper) loop() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			reaped, err := r.sessions.ReapExpired(ctx)
			cancel()
			if err != nil {
				r.logger.Warn("session reap failed", zap.Error(err))
				continue
			}
			if reaped > 0 {
				r.logger.Info("expired sessions reaped", zap.Int("count", reaped))
			}
		case <-r.stopCh:
			return
		}
	}
}
