package sessions

import (
	"time"

	"github.com/Movigation/moviesir-session/storage"
	"github.com/Movigation/moviesir-session/users"
	"github.com/golang-jwt/jwt/v5"
)

// Mode selects how a session is persisted
type Mode string

const (
	// ModeDurable ("remember me" on) survives indefinitely
	ModeDurable Mode = "durable"
	// ModeEphemeral ("remember me" off) ends after the session window
	ModeEphemeral Mode = "ephemeral"
)

// ModeFor maps the "remember me" checkbox to a persistence mode
func ModeFor(rememberMe bool) Mode {
	if rememberMe {
		return ModeDurable
	}
	return ModeEphemeral
}

// Scope is the storage scope the mode writes to
func (m Mode) Scope() storage.Scope {
	if m == ModeEphemeral {
		return storage.ScopeEphemeral
	}
	return storage.ScopeDurable
}

// Session is the authenticated state of one tenant.
type Session struct {
	ID                string          // Unique per login (UUID), not sent to the backend
	TenantID          string          // Backend the tokens belong to
	AccessToken       string          // Bearer credential
	RefreshToken      string          // Empty when the backend issued none
	Principal         users.Principal // User or Company
	Mode              Mode            // Durable or ephemeral persistence
	LoginTime         time.Time       // Start of the ephemeral window
	AccessTokenExpiry time.Time       // From the token's exp claim, zero if absent
}

// ExpiresAt is the end of the ephemeral window, or the zero time for durable sessions
func (s Session) ExpiresAt(window time.Duration) time.Time {
	if s.Mode != ModeEphemeral {
		return time.Time{}
	}
	return s.LoginTime.Add(window)
}

// accessTokenExpiry reads the exp claim without verifying the signature. The token
// is opaque to the client; the claim is informational only.
func accessTokenExpiry(token string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
