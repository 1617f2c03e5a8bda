package sessions

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// armLocked schedules the expiry of the session started at epoch. m.mu must be held.
func (m *Manager) armLocked(after time.Duration, epoch uint64) {
	m.timer = m.afterFunc(after, func() {
		m.expire(epoch)
	})
	log.Debug().Str("tenant", m.tenant.ID).Dur("after", after).Msg("session expiry armed")
}

// stopTimerLocked cancels a pending expiry. m.mu must be held.
func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// expire runs on the timer goroutine. A timer that fires after its session was
// replaced or ended finds a different epoch and does nothing.
func (m *Manager) expire(epoch uint64) {
	log.Info().Str("tenant", m.tenant.ID).Msg("session window elapsed")
	m.end(context.Background(), ReasonExpired, true, epoch)
}

// Remaining is how long the current ephemeral session has left. ok is false for
// durable sessions and when no one is logged in.
func (m *Manager) Remaining() (remaining time.Duration, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil || m.current.Mode != ModeEphemeral {
		return 0, false
	}
	remaining = m.window - m.nowTime().Sub(m.current.LoginTime)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}
