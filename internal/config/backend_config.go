package config

import "time"

type Backend struct{}

var _ BackendConfig = Backend{}

// GetAPIBaseURL is the consumer site's main API (movies, recommendations)
func (Backend) GetAPIBaseURL() string {
	return GetEnv("API_BASE_URL", "http://localhost:8000")
}

// GetAuthBaseURL is the consumer site's auth/registration API. It is split from the
// main API because the two can be served by different backends.
func (Backend) GetAuthBaseURL() string {
	return GetEnv("AUTH_BASE_URL", "http://localhost:8000")
}

func (Backend) GetConsoleBaseURL() string {
	return GetEnv("CONSOLE_BASE_URL", "http://localhost:8000")
}

func (Backend) GetRequestTimeout() time.Duration {
	return durationEnv("REQUEST_TIMEOUT", 30*time.Second)
}
