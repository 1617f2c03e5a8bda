package sessions

import (
	"context"
	"time"

	"github.com/Movigation/moviesir-session/users"
)

// EventType identifies a session lifecycle change
type EventType string

const (
	EventLogin            EventType = "login"
	EventLogout           EventType = "logout"
	EventPrincipalUpdated EventType = "principal_updated"
	EventTokenRefreshed   EventType = "token_refreshed"
	EventSessionExpired   EventType = "session_expired"
)

// Reason explains why a session ended
type Reason string

const (
	ReasonUserLogout    Reason = "logout"
	ReasonRefreshFailed Reason = "refresh_failed"
	ReasonExpired       Reason = "expired"
)

// Event is delivered to observers after the change has been applied and persisted.
type Event struct {
	Type      EventType
	TenantID  string
	Principal users.Principal // Principal after the change; the ended principal for logout
	Reason    Reason          // Set for EventLogout
	Restored  bool            // EventLogin raised by LoadFromStorage
	At        time.Time
}

// Observer receives session events. Callbacks run synchronously on the goroutine that
// changed the session and must not block for long.
type Observer interface {
	OnSessionEvent(ctx context.Context, e Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(ctx context.Context, e Event)

func (f ObserverFunc) OnSessionEvent(ctx context.Context, e Event) {
	f(ctx, e)
}

type subscription struct {
	id       uint64
	observer Observer
}
