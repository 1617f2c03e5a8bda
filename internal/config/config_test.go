package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Movigation/moviesir-session/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	config.ResetFile()
	c, err := config.New()
	require.NoError(t, err)

	require.Equal(t, ":8080", c.GetPort())
	require.Equal(t, time.Hour, c.GetSessionWindow())
	require.Equal(t, "file", c.GetStorageBackend())
	require.Equal(t, "moviesir", c.GetDefaultTenantID())
	require.True(t, c.GetAllowedOrigins().IsAllowedOrigin("http://localhost:5173"))
}

func TestEnvOverrides(t *testing.T) {
	config.ResetFile()
	t.Setenv("PORT", ":9000")
	t.Setenv("SESSION_WINDOW", "1500")
	t.Setenv("STORAGE_BACKEND", "REDIS")
	t.Setenv("ALLOWED_ORIGINS", "https://console.moviesir.cloud, https://moviesir.cloud")

	c, err := config.New()
	require.NoError(t, err)
	require.Equal(t, ":9000", c.GetPort())
	require.Equal(t, 1500*time.Millisecond, c.GetSessionWindow())
	require.Equal(t, "redis", c.GetStorageBackend())
	require.True(t, c.GetAllowedOrigins().IsAllowedOrigin("https://moviesir.cloud"))
	require.False(t, c.GetAllowedOrigins().IsAllowedOrigin("http://localhost:5173"))
}

func TestInvalidSessionWindowFallsBack(t *testing.T) {
	config.ResetFile()
	t.Setenv("SESSION_WINDOW", "soon")
	c, err := config.New()
	require.NoError(t, err)
	require.Equal(t, time.Hour, c.GetSessionWindow())
}

func TestConfigFileOverlay(t *testing.T) {
	t.Cleanup(config.ResetFile)
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte("API_BASE_URL: https://api.moviesir.cloud\nSTORAGE_BACKEND: memory\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("STORAGE_BACKEND", "redis")

	c, err := config.New()
	require.NoError(t, err)
	require.Equal(t, "https://api.moviesir.cloud", c.GetAPIBaseURL())
	// env wins over the file
	require.Equal(t, "redis", c.GetStorageBackend())
}

func TestConfigFileMissing(t *testing.T) {
	t.Cleanup(config.ResetFile)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := config.New()
	require.Error(t, err)
}
