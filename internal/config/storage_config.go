package config

import "strings"

type StorageConfig interface {
	GetStorageBackend() string
	GetStorageSecret() string
	GetRedisURL() string
	GetRedisPassword() string
	GetDatabaseURL() string
}

type Storage struct{}

var _ StorageConfig = Storage{}

// GetStorageBackend is one of memory, file, redis, postgres
func (Storage) GetStorageBackend() string {
	return strings.ToLower(GetEnv("STORAGE_BACKEND", "file"))
}

// GetStorageSecret keys the at-rest encryption of the file backend
func (Storage) GetStorageSecret() string {
	return GetEnv("STORAGE_SECRET", "")
}

func (Storage) GetRedisURL() string {
	return GetEnv("REDIS_URL", "")
}

func (Storage) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}

func (Storage) GetDatabaseURL() string {
	return GetEnv("DATABASE_URL", "")
}
