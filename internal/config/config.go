package config

import "time"

type Config interface {
	EnvConfig
	CorsConfig
	BackendConfig
	SessionConfig
	StorageConfig
	OAuthConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetDataFolder() string
	GetLogLevel() string
	GetEnv() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type BackendConfig interface {
	GetAPIBaseURL() string
	GetAuthBaseURL() string
	GetConsoleBaseURL() string
	GetRequestTimeout() time.Duration
}

type mainConfig struct {
	EnvVars
	Cors
	Backend
	Session
	Storage
	OAuth
}

// New returns the environment backed configuration. When CONFIG_FILE is set the
// YAML file is loaded first and its values are used as fallbacks for unset env vars.
func New() (Config, error) {
	if path := GetEnv(configFileVar, ""); path != "" {
		if err := LoadFile(path); err != nil {
			return nil, err
		}
	}
	return mainConfig{}, nil
}
