package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/dontask")
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("ACCESS_TOKEN_LIFETIME", "")
	t.Setenv("REFRESH_TOKEN_LIFETIME", "")
	t.Setenv("REAPER_INTERVAL", "")
	t.Setenv("COOKIE_SECURE", "")
	t.Setenv("LOG_LEVEL", "")
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenLifetime)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTokenLifetime)
	assert.Equal(t, time.Hour, cfg.ReaperInterval)
	assert.True(t, cfg.CookieSecure)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_Overrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ACCESS_TOKEN_LIFETIME", "5m")
	t.Setenv("REFRESH_TOKEN_LIFETIME", "720h")
	t.Setenv("REAPER_INTERVAL", "10m")
	t.Setenv("COOKIE_SECURE", "false")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.AccessTokenLifetime)
	assert.Equal(t, 720*time.Hour, cfg.RefreshTokenLifetime)
	assert.Equal(t, 10*time.Minute, cfg.ReaperInterval)
	assert.False(t, cfg.CookieSecure)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_BuildsDSNFromParts(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_DB", "dontask")
	t.Setenv("POSTGRES_PASSWORD", "pw")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Contains(t, cfg.DatabaseURL, "host=db")
	assert.Contains(t, cfg.DatabaseURL, "dbname=dontask")
	assert.Contains(t, cfg.DatabaseURL, "TimeZone=UTC")
}

func TestLoad_ConfigurationErrors(t *testing.T) {
	cases := []struct {
		name string
		key  string
		val  string
	}{
		{"missing secret", "JWT_SECRET", ""},
		{"short secret", "JWT_SECRET", "short"},
		{"bad access duration", "ACCESS_TOKEN_LIFETIME", "soon"},
		{"negative refresh lifetime", "REFRESH_TOKEN_LIFETIME", "-1s"},
		{"refresh shorter than access", "REFRESH_TOKEN_LIFETIME", "1m"},
		{"zero reaper interval", "REAPER_INTERVAL", "0s"},
		{"bad cookie flag", "COOKIE_SECURE", "maybe"},
		{"bad log level", "LOG_LEVEL", "trace"},
		{"missing database", "DATABASE_URL", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv("POSTGRES_HOST", "")
			t.Setenv("POSTGRES_DB", "")
			t.Setenv(tc.key, tc.val)

			_, err := Load()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfiguration), "got %v", err)
		})
	}
}
