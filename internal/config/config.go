// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every runtime setting.
type Config struct {
	AppPort           string
	DatabaseDSN       string
	SupabaseURL       string
	SupabaseAnonKey   string
	SupabaseJWTSecret string
	SiteURL           string
	AuthProviders     []string
	CookieSecure      bool
	RedisAddr         string
	RedisPassword     string
	ViewCacheTTL      time.Duration
	RabbitMQURL       string
	LogLevel          string
	LogFile           string
}

var required = []string{"DATABASE_DSN", "SUPABASE_URL", "SUPABASE_ANON_KEY"}

// Load reads .env (when present) and the environment. Missing required keys
// are reported together in one error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not read .env file", "err", err)
	}

	v := viper.New()
	v.SetDefault("APP_PORT", ":8080")
	v.SetDefault("AUTH_PROVIDERS", "google,github,discord")
	v.SetDefault("COOKIE_SECURE", true)
	v.SetDefault("VIEW_CACHE_TTL", "60s")
	v.SetDefault("LOG_LEVEL", "info")
	v.AutomaticEnv()

	var missing []string
	for _, key := range required {
		if strings.TrimSpace(v.GetString(key)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	ttl := v.GetDuration("VIEW_CACHE_TTL")
	if ttl <= 0 {
		return nil, fmt.Errorf("invalid VIEW_CACHE_TTL %q", v.GetString("VIEW_CACHE_TTL"))
	}

	return &Config{
		AppPort:           v.GetString("APP_PORT"),
		DatabaseDSN:       v.GetString("DATABASE_DSN"),
		SupabaseURL:       strings.TrimRight(v.GetString("SUPABASE_URL"), "/"),
		SupabaseAnonKey:   v.GetString("SUPABASE_ANON_KEY"),
		SupabaseJWTSecret: v.GetString("SUPABASE_JWT_SECRET"),
		SiteURL:           strings.TrimRight(v.GetString("SITE_URL"), "/"),
		AuthProviders:     splitList(v.GetString("AUTH_PROVIDERS")),
		CookieSecure:      v.GetBool("COOKIE_SECURE"),
		RedisAddr:         v.GetString("REDIS_ADDR"),
		RedisPassword:     v.GetString("REDIS_PASSWORD"),
		ViewCacheTTL:      ttl,
		RabbitMQURL:       v.GetString("RABBITMQ_URL"),
		LogLevel:          v.GetString("LOG_LEVEL"),
		LogFile:           v.GetString("LOG_FILE"),
	}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
