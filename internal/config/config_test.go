package config_test

import (
	"testing"
	"time"

	"mediashelf/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_DSN", "postgres://localhost/mediashelf")
	t.Setenv("SUPABASE_URL", "https://project.supabase.co/")
	t.Setenv("SUPABASE_ANON_KEY", "anon")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppPort)
	assert.Equal(t, "https://project.supabase.co", cfg.SupabaseURL)
	assert.Equal(t, []string{"google", "github", "discord"}, cfg.AuthProviders)
	assert.True(t, cfg.CookieSecure)
	assert.Equal(t, time.Minute, cfg.ViewCacheTTL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.RabbitMQURL)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_PORT", ":9090")
	t.Setenv("AUTH_PROVIDERS", " GitHub , ,discord")
	t.Setenv("COOKIE_SECURE", "false")
	t.Setenv("VIEW_CACHE_TTL", "5m")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.AppPort)
	assert.Equal(t, []string{"github", "discord"}, cfg.AuthProviders)
	assert.False(t, cfg.CookieSecure)
	assert.Equal(t, 5*time.Minute, cfg.ViewCacheTTL)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_DSN", "")
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("SUPABASE_ANON_KEY", "anon")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_DSN")
	assert.Contains(t, err.Error(), "SUPABASE_URL")
	assert.NotContains(t, err.Error(), "SUPABASE_ANON_KEY")
}

func TestLoad_InvalidTTL(t *testing.T) {
	setRequired(t)
	t.Setenv("VIEW_CACHE_TTL", "soon")

	_, err := config.Load()
	assert.Error(t, err)
}
