// Package authapi talks to the auth endpoints of a tenant backend: password login,
// social login callbacks, token refresh, logout and principal lookup.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/Movigation/moviesir-session/internal/errors"
	"github.com/Movigation/moviesir-session/internal/utils"
	"github.com/Movigation/moviesir-session/tenants"
	"github.com/Movigation/moviesir-session/users"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodySize    = 1 << 20
	maxErrorBody   = 256
)

// Doer sends a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is bound to one tenant backend
type Client struct {
	tenant   *tenants.Tenant
	http     Doer
	validate *validator.Validate
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(d Doer) ClientOption {
	return func(c *Client) {
		c.http = d
	}
}

// New creates a client for tenant
func New(tenant *tenants.Tenant, options ...ClientOption) (*Client, error) {
	if tenant == nil {
		return nil, errors.New("[authapi.New] tenant is required")
	}
	if tenant.AuthBaseURL == "" {
		return nil, errors.Errorf("[authapi.New] tenant %s has no auth base url", tenant.ID)
	}

	c := &Client{
		tenant:   tenant,
		http:     &http.Client{Timeout: defaultTimeout},
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Tenant returns the backend profile the client is bound to
func (c *Client) Tenant() *tenants.Tenant {
	return c.tenant
}

// Login exchanges credentials for tokens and the principal. A 401 maps to
// ErrInvalidCredentials and a 403 to ErrAccountDeleted.
func (c *Client) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	if err := c.validate.Struct(creds); err != nil {
		return nil, errors.Wrap(apperrors.ErrInvalidRequest, "[Client.Login] "+err.Error())
	}

	data, err := c.do(ctx, http.MethodPost, c.tenant.AuthBaseURL, c.tenant.Paths.Login, "", creds)
	if err != nil {
		return nil, credentialError("[Client.Login]", err)
	}
	return c.decodeLogin(data)
}

// OAuthCallback hands a provider authorization code to the backend, which completes
// the exchange and answers with the same body as a password login.
func (c *Client) OAuthCallback(ctx context.Context, provider, code, redirectURI string) (*LoginResult, error) {
	if !c.tenant.SupportsOAuth() {
		return nil, errors.Wrapf(apperrors.ErrUnknownProvider, "[Client.OAuthCallback] tenant %s has no social login", c.tenant.ID)
	}
	body := OAuthCallbackRequest{Code: code, RedirectURI: redirectURI}
	if err := c.validate.Struct(body); err != nil {
		return nil, errors.Wrap(apperrors.ErrMissingCode, "[Client.OAuthCallback] "+err.Error())
	}

	data, err := c.do(ctx, http.MethodPost, c.tenant.AuthBaseURL, c.tenant.OAuthCallbackPath(provider), "", body)
	if err != nil {
		return nil, credentialError("[Client.OAuthCallback]", err)
	}
	return c.decodeLogin(data)
}

// Refresh trades refreshToken for a new access token
func (c *Client) Refresh(ctx context.Context, refreshToken string) (string, error) {
	body := RefreshRequest{RefreshToken: refreshToken}
	if err := c.validate.Struct(body); err != nil {
		return "", errors.Wrap(apperrors.ErrNoRefreshToken, "[Client.Refresh]")
	}

	data, err := c.do(ctx, http.MethodPost, c.tenant.AuthBaseURL, c.tenant.Paths.Refresh, "", body)
	if err != nil {
		return "", errors.Wrap(err, "[Client.Refresh]")
	}

	var resp RefreshResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", errors.Wrap(err, "[Client.Refresh] decode")
	}
	if resp.AccessToken == "" {
		return "", errors.New("[Client.Refresh] response has no access_token")
	}
	return resp.AccessToken, nil
}

// Logout revokes the session on the backend
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	if _, err := c.do(ctx, http.MethodPost, c.tenant.AuthBaseURL, c.tenant.Paths.Logout, accessToken, nil); err != nil {
		return errors.Wrap(err, "[Client.Logout]")
	}
	return nil
}

// FetchPrincipal reloads the principal with the given id
func (c *Client) FetchPrincipal(ctx context.Context, accessToken, id string) (users.Principal, error) {
	data, err := c.do(ctx, http.MethodGet, c.tenant.APIBaseURL, c.tenant.PrincipalPath(id), accessToken, nil)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.FetchPrincipal]")
	}
	p, err := users.Decode(c.tenant.PrincipalKind, data)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.FetchPrincipal]")
	}
	return p, nil
}

func (c *Client) decodeLogin(data []byte) (*LoginResult, error) {
	var resp LoginResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, errors.Wrap(err, "[Client.decodeLogin] decode")
	}
	if resp.AccessToken == "" {
		return nil, errors.New("[Client.decodeLogin] response has no access_token")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, errors.Wrap(err, "[Client.decodeLogin] decode")
	}
	raw, ok := fields[c.tenant.PrincipalKey]
	if !ok || string(raw) == "null" {
		return nil, errors.Errorf("[Client.decodeLogin] response has no %s", c.tenant.PrincipalKey)
	}
	principal, err := users.Decode(c.tenant.PrincipalKind, raw)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.decodeLogin]")
	}

	return &LoginResult{
		AccessToken:  resp.AccessToken,
		RefreshToken: utils.StringValue(resp.RefreshToken),
		Principal:    principal,
	}, nil
}

func (c *Client) do(ctx context.Context, method, baseURL, path, bearer string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(baseURL, "/")+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	op := method + " " + path
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &apperrors.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &apperrors.NetworkError{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newHTTPError(resp.StatusCode, data)
	}
	return data, nil
}

func newHTTPError(status int, data []byte) *apperrors.HTTPError {
	var eb errorBody
	msg := ""
	if err := json.Unmarshal(data, &eb); err == nil {
		msg = eb.message()
	}
	if msg == "" {
		msg = strings.TrimSpace(string(data))
	}
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	return &apperrors.HTTPError{StatusCode: status, Body: msg}
}

// credentialError classifies login rejections so callers can show them inline
func credentialError(op string, err error) error {
	switch apperrors.StatusCode(err) {
	case http.StatusUnauthorized:
		return fmt.Errorf("%s %w: %w", op, apperrors.ErrInvalidCredentials, err)
	case http.StatusForbidden:
		return fmt.Errorf("%s %w: %w", op, apperrors.ErrAccountDeleted, err)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%s %w: %w", op, apperrors.ErrInvalidRequest, err)
	}
	return errors.Wrap(err, op)
}
