// Package eventhandler contains reactions to domain events. Handlers run
// after the producing unit of work has committed and never write to the
// ledger themselves.
package eventhandler

import (
	"context"
	"fmt"
	"time"

	"github.com/mentorhub/mentorhub-backend/internal/domain/leaderboard"
	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
	"github.com/mentorhub/mentorhub-backend/pkg/circuitbreaker"
	"github.com/mentorhub/mentorhub-backend/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON XP AWARDED HANDLER
// Mirrors the new balance into the leaderboard sorted set. The cache is
// advisory: failures are logged and the periodic rebuild job repairs drift.
// ═══════════════════════════════════════════════════════════════════════════

// OnXPAwardedHandler keeps the leaderboard cache in step with the ledger.
type OnXPAwardedHandler struct {
	cache   leaderboard.Cache
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger
	timeout time.Duration
}

// NewOnXPAwardedHandler creates the handler.
func NewOnXPAwardedHandler(cache leaderboard.Cache, breaker *circuitbreaker.CircuitBreaker, log *logger.Logger) *OnXPAwardedHandler {
	if log == nil {
		log = logger.Nop()
	}
	if breaker == nil {
		breaker = circuitbreaker.CacheBreaker(nil)
	}
	return &OnXPAwardedHandler{
		cache:   cache,
		breaker: breaker,
		log:     log.With(logger.Component("on_xp_awarded")),
		timeout: 2 * time.Second,
	}
}

// Handle implements shared.EventHandler.
func (h *OnXPAwardedHandler) Handle(event shared.Event) error {
	e, ok := event.(shared.XPAwardedEvent)
	if !ok {
		h.log.Warn("unexpected event", logger.String("event_type", string(event.EventType())))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	err := h.breaker.Execute(ctx, func(ctx context.Context) error {
		return h.cache.SetScore(ctx, shared.UserID(e.UserID), e.NewTotal)
	})
	if err != nil {
		if circuitbreaker.IsRejected(err) {
			return nil
		}
		h.log.Warn("failed to update leaderboard cache",
			logger.UserID(e.UserID),
			logger.Int("xp", e.NewTotal),
			logger.Err(err),
		)
		return fmt.Errorf("on_xp_awarded: %w", err)
	}
	return nil
}

// Register subscribes the handler to earn and spend events.
func (h *OnXPAwardedHandler) Register(sub shared.EventSubscriber) error {
	for _, t := range []shared.EventType{shared.EventXPAwarded, shared.EventXPSpent} {
		if err := sub.Subscribe(t, h.Handle); err != nil {
			return err
		}
	}
	return nil
}
