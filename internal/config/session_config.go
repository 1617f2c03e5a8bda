package config

import (
	"strconv"
	"time"
)

type SessionConfig interface {
	GetSessionWindow() time.Duration
	GetLogoutTimeout() time.Duration
	GetDefaultTenantID() string
}

type Session struct{}

var _ SessionConfig = Session{}

// GetSessionWindow is how long an ephemeral ("remember me" off) session lives.
// SESSION_WINDOW is expressed in milliseconds.
func (Session) GetSessionWindow() time.Duration {
	ms, err := strconv.ParseInt(GetEnv("SESSION_WINDOW", "3600000"), 10, 64)
	if err != nil || ms <= 0 {
		return time.Hour
	}
	return time.Duration(ms) * time.Millisecond
}

func (Session) GetLogoutTimeout() time.Duration {
	return durationEnv("LOGOUT_TIMEOUT", 5*time.Second)
}

func (Session) GetDefaultTenantID() string {
	return GetEnv("DEFAULT_TENANT", "moviesir")
}

func durationEnv(envVar string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(GetEnv(envVar, ""))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
