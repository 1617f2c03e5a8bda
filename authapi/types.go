package authapi

import (
	"encoding/json"

	"github.com/Movigation/moviesir-session/users"
)

// Credentials is the body of a password login.
type Credentials struct {
	// Email identifies the account.
	// Required: Yes
	// Example: "jane@moviesir.cloud"
	Email string `json:"email" validate:"required,email"`

	// Password is sent as-is to the backend over TLS and never persisted.
	// Required: Yes
	Password string `json:"password" validate:"required"`
}

// LoginResponse is the body returned by the login and OAuth callback endpoints.
// The principal sits under a tenant specific key ("user" for the consumer site,
// "company" for the console), so it is decoded in two passes.
type LoginResponse struct {
	// AccessToken is the bearer credential attached to every API request.
	// Example: "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."
	AccessToken string `json:"access_token"`

	// RefreshToken exchanges for a new access token once the current one expires.
	// Only present: consumer site logins. The console does not issue one.
	RefreshToken *string `json:"refresh_token,omitempty"`

	// TokenType is always "bearer" when present.
	TokenType string `json:"token_type,omitempty"`
}

// RefreshRequest is the body of the refresh endpoint. The field name is camel case
// on the wire.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// RefreshResponse carries the replacement access token.
type RefreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
}

// OAuthCallbackRequest forwards the provider's authorization code to the backend,
// which performs the code exchange.
type OAuthCallbackRequest struct {
	Code        string `json:"code" validate:"required"`
	RedirectURI string `json:"redirect_uri" validate:"required,url"`
}

// LoginResult is the decoded outcome of a login.
type LoginResult struct {
	AccessToken  string
	RefreshToken string // empty when the backend issues none
	Principal    users.Principal
}

// errorBody matches the {"detail": "..."} error shape of the backends
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

func (e errorBody) message() string {
	if len(e.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Detail, &s); err == nil {
		return s
	}
	return string(e.Detail)
}
