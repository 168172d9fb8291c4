package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	for _, key := range []string{EnvConfigPath, EnvAuthURL, EnvAPIURL, EnvTimeout, EnvDB, EnvLogLevel, EnvPageSize, EnvCatalogTTL} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.AuthURL, cfg.AuthURL)
	assert.Equal(t, def.APIURL, cfg.APIURL)
	assert.Equal(t, 15*time.Second, cfg.Timeout)
	assert.Equal(t, 10, cfg.PageSize)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
auth_url: https://news.example.com/api/auth
api_url: https://news.example.com/api
timeout: 5s
db: /tmp/news.db
log_level: debug
page_size: 25
catalog_ttl: 1h
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://news.example.com/api/auth", cfg.AuthURL)
	assert.Equal(t, "https://news.example.com/api", cfg.APIURL)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, "/tmp/news.db", cfg.DB)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 25, cfg.PageSize)
	assert.Equal(t, time.Hour, cfg.CatalogTTL)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "api_url: https://file.example.com/api\npage_size: 25\n")

	t.Setenv(EnvAPIURL, "https://env.example.com/api")
	t.Setenv(EnvPageSize, "50")
	t.Setenv(EnvTimeout, "2m")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com/api", cfg.APIURL)
	assert.Equal(t, 50, cfg.PageSize)
	assert.Equal(t, 2*time.Minute, cfg.Timeout)
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "log_level: error\n")
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "malformed yaml",
			file:    "api_url: [unterminated\n",
			wantErr: "failed to parse config file",
		},
		{
			name:    "relative api url",
			file:    "api_url: /api\n",
			wantErr: "invalid api_url",
		},
		{
			name:    "non-http scheme",
			file:    "auth_url: ftp://example.com/auth\n",
			wantErr: "invalid auth_url",
		},
		{
			name:    "bad timeout env",
			env:     map[string]string{EnvTimeout: "soon"},
			wantErr: "invalid NEWS_CLI_TIMEOUT",
		},
		{
			name:    "bad page size env",
			env:     map[string]string{EnvPageSize: "ten"},
			wantErr: "invalid NEWS_CLI_PAGE_SIZE",
		},
		{
			name:    "misspelt log level",
			file:    "log_level: wran\n",
			wantErr: "invalid log_level",
		},
		{
			name:    "unknown log level env",
			env:     map[string]string{EnvLogLevel: "verbose"},
			wantErr: "invalid log_level",
		},
		{
			name:    "zero page size",
			env:     map[string]string{EnvPageSize: "-1"},
			wantErr: "page_size must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := filepath.Join(t.TempDir(), "absent.yaml")
			if tt.file != "" {
				path = writeConfig(t, tt.file)
			}

			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
