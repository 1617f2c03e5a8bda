// Package refresh serializes access token refreshes. Any number of requests can
// fail with 401 at once; exactly one refresh round trip is made and every parked
// request is released with its outcome.
package refresh

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/Movigation/moviesir-session/internal/errors"
	"github.com/Movigation/moviesir-session/internal/metrics"
	"github.com/Movigation/moviesir-session/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const defaultRefreshTimeout = 30 * time.Second

// State of the coordinator
type State int

const (
	Idle State = iota
	Refreshing
	Draining
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Refreshing:
		return "refreshing"
	case Draining:
		return "draining"
	}
	return "unknown"
}

// Refresher performs the refresh round trip against the backend
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (string, error)
}

// Session is the token holder the coordinator reads and updates. Writes carry the
// epoch the refresh started in so they never land on a later session.
// *sessions.Manager satisfies it.
type Session interface {
	Tokens() (accessToken, refreshToken string, epoch uint64)
	SetAccessTokenFor(ctx context.Context, epoch uint64, token string) error
	ClearFor(ctx context.Context, epoch uint64, reason sessions.Reason)
}

type outcome struct {
	epoch uint64
	token string
	err   error
}

// Coordinator owns the refresh state machine of one tenant session
type Coordinator struct {
	tenantID  string
	session   Session
	refresher Refresher
	timeout   time.Duration

	mu      sync.Mutex
	state   State
	pending []chan outcome
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithTimeout bounds the refresh round trip
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewCoordinator creates an idle coordinator
func NewCoordinator(tenantID string, session Session, refresher Refresher, options ...Option) (*Coordinator, error) {
	if session == nil {
		return nil, errors.New("[NewCoordinator] session is required")
	}
	if refresher == nil {
		return nil, errors.New("[NewCoordinator] refresher is required")
	}

	c := &Coordinator{
		tenantID:  tenantID,
		session:   session,
		refresher: refresher,
		timeout:   defaultRefreshTimeout,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// State reports the current state
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending reports how many requests are parked on the in-flight refresh
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Await is called by a request of the session started at epoch that got 401 with
// failedToken. It returns the token the request should be replayed with, a
// RefreshError once the session is gone, or ErrStaleSession when another session
// took its place.
//
// If another refresh already replaced failedToken the current token is returned
// without a round trip. Callers arriving while a refresh is in flight are parked and
// released in arrival order.
func (c *Coordinator) Await(ctx context.Context, epoch uint64, failedToken string) (string, error) {
	for {
		c.mu.Lock()

		if c.state != Idle {
			ch := make(chan outcome, 1)
			c.pending = append(c.pending, ch)
			c.mu.Unlock()
			metrics.ParkedRequests.WithLabelValues(c.tenantID).Inc()

			select {
			case res := <-ch:
				if res.epoch != epoch {
					// that refresh served another session, look again
					continue
				}
				return res.token, res.err
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		access, refreshToken, current := c.session.Tokens()
		if current != epoch {
			c.mu.Unlock()
			metrics.RefreshAttempts.WithLabelValues(c.tenantID, "stale").Inc()
			return "", errors.Wrap(apperrors.ErrStaleSession, "[Coordinator.Await]")
		}

		if access != "" && access != failedToken {
			c.mu.Unlock()
			metrics.RefreshAttempts.WithLabelValues(c.tenantID, "skipped").Inc()
			return access, nil
		}

		if refreshToken == "" {
			c.mu.Unlock()
			metrics.RefreshAttempts.WithLabelValues(c.tenantID, "no_refresh_token").Inc()
			c.session.ClearFor(ctx, epoch, sessions.ReasonRefreshFailed)
			return "", &apperrors.RefreshError{Err: apperrors.ErrNoRefreshToken}
		}

		c.state = Refreshing
		c.mu.Unlock()
		return c.lead(ctx, epoch, refreshToken)
	}
}

// lead runs the refresh for the session started at epoch and releases the parked
// requests with its outcome
func (c *Coordinator) lead(ctx context.Context, epoch uint64, refreshToken string) (string, error) {
	token, err := c.refresh(ctx, refreshToken)
	if err != nil {
		rerr := &apperrors.RefreshError{Err: apperrors.ErrRefreshFailed, Cause: err}
		metrics.RefreshAttempts.WithLabelValues(c.tenantID, "failure").Inc()
		log.Warn().Err(err).Str("tenant", c.tenantID).Msg("token refresh failed, ending session")
		c.session.ClearFor(ctx, epoch, sessions.ReasonRefreshFailed)
		c.drain(outcome{epoch: epoch, err: rerr})
		return "", rerr
	}

	if err := c.session.SetAccessTokenFor(ctx, epoch, token); err != nil {
		metrics.RefreshAttempts.WithLabelValues(c.tenantID, "stale").Inc()
		log.Debug().Err(err).Str("tenant", c.tenantID).Msg("session changed during refresh, token dropped")
		serr := errors.Wrap(err, "[Coordinator.lead] store token")
		c.drain(outcome{epoch: epoch, err: serr})
		return "", serr
	}

	metrics.RefreshAttempts.WithLabelValues(c.tenantID, "success").Inc()
	c.drain(outcome{epoch: epoch, token: token})
	return token, nil
}

// refresh runs the round trip detached from the caller's cancellation, since the
// parked requests depend on its result too
func (c *Coordinator) refresh(ctx context.Context, refreshToken string) (string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()
	return c.refresher.Refresh(ctx, refreshToken)
}

func (c *Coordinator) drain(res outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = Draining
	waiters := c.pending
	c.pending = nil
	for _, ch := range waiters {
		ch <- res
	}
	c.state = Idle

	if len(waiters) > 0 {
		log.Debug().Str("tenant", c.tenantID).Int("waiters", len(waiters)).Bool("ok", res.err == nil).Msg("released parked requests")
	}
}
