// Package metrics holds the prometheus collectors for the session lifecycle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RefreshAttempts counts refresh round trips by outcome (success, failure, skipped, stale, no_refresh_token)
	RefreshAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moviesir",
		Subsystem: "session",
		Name:      "refresh_total",
		Help:      "Token refresh attempts by outcome.",
	}, []string{"tenant", "outcome"})

	// ParkedRequests counts requests that waited on an in-flight refresh
	ParkedRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moviesir",
		Subsystem: "session",
		Name:      "parked_requests_total",
		Help:      "Requests parked while a refresh was in flight.",
	}, []string{"tenant"})

	// SessionsEnded counts cleared sessions by reason
	SessionsEnded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moviesir",
		Subsystem: "session",
		Name:      "ended_total",
		Help:      "Sessions cleared, labelled by reason.",
	}, []string{"tenant", "reason"})

	// Logins counts successful logins by persistence mode
	Logins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moviesir",
		Subsystem: "session",
		Name:      "login_total",
		Help:      "Successful logins by persistence mode.",
	}, []string{"tenant", "mode"})
)

// Register adds all collectors to reg
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{RefreshAttempts, ParkedRequests, SessionsEnded, Logins} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
