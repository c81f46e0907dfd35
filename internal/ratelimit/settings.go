package ratelimit

import (
	"strings"
	"time"

	"github.com/promptarchitect/server/internal/config"
)

const (
	// DefaultWindow is the window length used when none is configured.
	DefaultWindow = time.Minute
	// DefaultRedisPrefix namespaces limiter keys in a shared Redis.
	DefaultRedisPrefix = "promptarchitect:ratelimit"
)

// SettingsConfig captures the limiter settings in effect.
type SettingsConfig struct {
	Limit         int
	Window        time.Duration
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// SettingsFromConfig normalizes the loaded rate limit config.
func SettingsFromConfig(cfg config.RateLimitConfig) SettingsConfig {
	out := SettingsConfig{
		Limit:         cfg.Limit,
		Window:        cfg.Window,
		RedisEnabled:  cfg.Redis.Enabled,
		RedisAddr:     strings.TrimSpace(cfg.Redis.Addr),
		RedisPassword: strings.TrimSpace(cfg.Redis.Password),
		RedisDB:       cfg.Redis.DB,
		RedisPrefix:   strings.TrimSpace(cfg.Redis.Prefix),
	}
	if out.Limit < 0 {
		out.Limit = 0
	}
	if out.Window <= 0 {
		out.Window = DefaultWindow
	}
	if out.RedisDB < 0 {
		out.RedisDB = 0
	}
	if out.RedisPrefix == "" {
		out.RedisPrefix = DefaultRedisPrefix
	}
	return out
}

// StaticSettings returns a provider that always yields cfg.
func StaticSettings(cfg SettingsConfig) SettingsProvider {
	return func() SettingsConfig { return cfg }
}
