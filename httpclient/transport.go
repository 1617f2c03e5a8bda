// Package httpclient is the HTTP layer every backend call goes through. It attaches
// the session's bearer token, recovers from an expired token once per request via
// the refresh coordinator and reports error statuses to the UI shell.
package httpclient

import (
	"bytes"
	"context"
	"io"
	"net/http"

	apperrors "github.com/Movigation/moviesir-session/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// TokenSource exposes the session state the transport reads. *sessions.Manager
// satisfies it.
type TokenSource interface {
	AccessToken() string
	Epoch() uint64
}

// Awaiter resolves a 401 into a replacement token for the session started at epoch.
// *refresh.Coordinator satisfies it.
type Awaiter interface {
	Await(ctx context.Context, epoch uint64, failedToken string) (string, error)
}

// ErrorRouter is told about 400, 423 and 500 responses so the shell can switch to
// its error view. The response is still returned to the caller.
type ErrorRouter func(req *http.Request, status int)

// routedStatuses have a dedicated error view
var routedStatuses = map[int]bool{
	http.StatusBadRequest:          true,
	http.StatusLocked:              true,
	http.StatusInternalServerError: true,
}

// Transport is an http.RoundTripper bound to one tenant session
type Transport struct {
	base     http.RoundTripper
	session  TokenSource
	awaiter  Awaiter
	onError  ErrorRouter
	tenantID string
}

var _ http.RoundTripper = (*Transport)(nil)

// TransportOption configures a Transport
type TransportOption func(*Transport)

// WithBase sets the underlying round tripper, http.DefaultTransport by default
func WithBase(rt http.RoundTripper) TransportOption {
	return func(t *Transport) {
		t.base = rt
	}
}

// WithErrorRouter installs the error view hook
func WithErrorRouter(router ErrorRouter) TransportOption {
	return func(t *Transport) {
		t.onError = router
	}
}

// WithTenantID labels log lines
func WithTenantID(id string) TransportOption {
	return func(t *Transport) {
		t.tenantID = id
	}
}

// NewTransport creates a transport. awaiter may be nil, in which case 401 responses
// are returned without a refresh attempt.
func NewTransport(session TokenSource, awaiter Awaiter, options ...TransportOption) (*Transport, error) {
	if session == nil {
		return nil, errors.New("[NewTransport] session is required")
	}
	t := &Transport{
		base:    http.DefaultTransport,
		session: session,
		awaiter: awaiter,
	}
	for _, opt := range options {
		opt(t)
	}
	return t, nil
}

// RoundTrip sends req with the current bearer token. A 401 on a request that has not
// been replayed yet parks it on the coordinator and replays it once with the token
// the refresh produced.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	opts := optionsFrom(ctx)
	epoch := t.session.Epoch()

	req, err := replayable(req)
	if err != nil {
		return nil, err
	}

	token := ""
	if !opts.skipAuth {
		token = t.session.AccessToken()
	}

	resp, err := t.send(req, token)
	if err != nil {
		return nil, &apperrors.NetworkError{Op: req.Method + " " + req.URL.Path, Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized && token != "" && !opts.retried && t.awaiter != nil {
		discard(resp)

		fresh, err := t.awaiter.Await(ctx, epoch, token)
		if err != nil {
			return nil, errors.Wrapf(err, "%s %s", req.Method, req.URL.Path)
		}

		retry, err := rewind(req.WithContext(withRetried(ctx)))
		if err != nil {
			return nil, err
		}
		log.Debug().Str("tenant", t.tenantID).Str("path", req.URL.Path).Msg("replaying request after refresh")
		resp, err = t.send(retry, fresh)
		if err != nil {
			return nil, &apperrors.NetworkError{Op: req.Method + " " + req.URL.Path, Err: err}
		}
	}

	if !opts.skipAuth && t.session.Epoch() != epoch {
		discard(resp)
		return nil, errors.Wrapf(apperrors.ErrStaleSession, "%s %s", req.Method, req.URL.Path)
	}

	if routedStatuses[resp.StatusCode] && !opts.skipErrorRedirect && t.onError != nil {
		t.onError(req, resp.StatusCode)
	}
	return resp, nil
}

func (t *Transport) send(req *http.Request, token string) (*http.Response, error) {
	out := req.Clone(req.Context())
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	return t.base.RoundTrip(out)
}

// replayable makes sure the body of req can be read more than once
func replayable(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return req, nil
	}
	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, errors.Wrap(err, "[Transport] buffer request body")
	}
	out := req.Clone(req.Context())
	out.Body = io.NopCloser(bytes.NewReader(data))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return out, nil
}

func rewind(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return req, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("[Transport] request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, errors.Wrap(err, "[Transport] rewind request body")
	}
	out := req.Clone(req.Context())
	out.Body = body
	return out, nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
