package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STOREFRONT_CONFIG_FILE", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, "http://localhost:8001/api", cfg.StoreAPIURL)
	assert.Equal(t, "sqlite", cfg.TokenStore)
	assert.Equal(t, "token", cfg.TokenKey)
	assert.Equal(t, 30*24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, "/auth/me", cfg.AuthVerifyPath)
	assert.True(t, cfg.OTELMetricsEnabled)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "storefront.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store_api_url: https://api.example.com/api/\ntoken_store: redis\nstore_api_timeout: 3s\napp_port: 9000\n"), 0o600))

	t.Setenv("STOREFRONT_CONFIG_FILE", path)
	t.Setenv("APP_PORT", "7000")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com/api", cfg.StoreAPIURL)
	assert.Equal(t, "redis", cfg.TokenStore)
	assert.Equal(t, 3*time.Second, cfg.StoreAPITimeout)
	assert.Equal(t, "7000", cfg.AppPort)
	assert.Equal(t, 7000, cfg.GetAppPortInt())
}

func TestLoadConfig_RejectsUnknownTokenStore(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STOREFRONT_CONFIG_FILE", "")
	t.Setenv("TOKEN_STORE", "cookie")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Setenv("STOREFRONT_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_RejectsNestedFileValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		key  string
	}{
		{"map", "store_api_url: http://x/api\nredis_url:\n  host: localhost\n", "redis_url"},
		{"list", "token_store:\n  - redis\n  - sqlite\n", "token_store"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			path := filepath.Join(t.TempDir(), "storefront.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o600))
			t.Setenv("STOREFRONT_CONFIG_FILE", path)

			_, err := LoadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestGetDSN(t *testing.T) {
	cfg := &Config{DBUser: "u", DBPassword: "p", DBHost: "h", DBPort: "3306", DBName: "d"}
	assert.Equal(t, "u:p@tcp(h:3306)/d?parseTime=true&charset=utf8mb4", cfg.GetDSN())
}
