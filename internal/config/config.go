package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/promptarchitect/server/internal/provider"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath   = "CONFIG_PATH"
	EnvDBConnection = "DB_CONNECTION"
	EnvJWTSecret    = "JWT_SECRET"
	EnvJWTExpiry    = "JWT_EXPIRY"

	EnvAuthJWTSecret = "SUPABASE_JWT_SECRET"
	EnvAuthJWKSURL   = "SUPABASE_JWKS_URL"
	EnvAuthIssuer    = "SUPABASE_JWT_ISSUER"
	EnvAuthAudience  = "SUPABASE_JWT_AUDIENCE"

	EnvStripeSecretKey     = "STRIPE_SECRET_KEY"
	EnvStripeWebhookSecret = "STRIPE_WEBHOOK_SECRET"
	EnvAppURL              = "APP_URL"

	EnvKeyEncryptionKey = "KEY_ENCRYPTION_KEY"
	EnvLogLevel         = "LOG_LEVEL"
	EnvRedisAddr        = "REDIS_ADDR"
	EnvRedisPassword    = "REDIS_PASSWORD"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables, reading .env first when present.
func LoadFromEnv() (AppConfig, error) {
	if errLoad := godotenv.Load(); errLoad != nil && !errors.Is(errLoad, os.ErrNotExist) {
		return AppConfig{}, fmt.Errorf("load .env: %w", errLoad)
	}
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// readConfigFile unmarshals the YAML file into out. A missing file is not an error.
func readConfigFile(configPath string, out any) error {
	data, errRead := os.ReadFile(configPath)
	if errRead != nil {
		if errors.Is(errRead, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", errRead)
	}
	if errUnmarshal := yaml.Unmarshal(data, out); errUnmarshal != nil {
		return fmt.Errorf("parse config file: %w", errUnmarshal)
	}
	return nil
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// JWTConfig holds the admin token secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 30 * 24 * time.Hour

// LoadJWTConfig loads admin JWT settings from the YAML config file.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	// fileConfig maps the YAML fields needed for JWT settings.
	type fileConfig struct {
		JWT JWTConfig `yaml:"jwt"`
	}

	result := JWTConfig{Expiry: defaultJWTExpiry}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.JWT
		}
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}

	if result.Expiry <= 0 {
		result.Expiry = defaultJWTExpiry
	}
	return result, nil
}

// AuthConfig configures verification of end-user access tokens.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt-secret"` // HS256 shared secret.
	JWKSURL   string `yaml:"jwks-url"`   // JWKS endpoint for asymmetric keys.
	Issuer    string `yaml:"issuer"`     // Expected iss claim, optional.
	Audience  string `yaml:"audience"`   // Expected aud claim, optional.
}

// ErrMissingAuthConfig indicates neither a JWT secret nor a JWKS URL is configured.
var ErrMissingAuthConfig = errors.New("missing user auth config (set `auth.jwt-secret` or `auth.jwks-url`)")

// LoadAuthConfig loads user auth settings from the config file and env.
func LoadAuthConfig(configPath string) (AuthConfig, error) {
	type fileConfig struct {
		Auth AuthConfig `yaml:"auth"`
	}

	var cfg fileConfig
	if errRead := readConfigFile(configPath, &cfg); errRead != nil {
		return AuthConfig{}, errRead
	}
	result := cfg.Auth

	overrideString(&result.JWTSecret, EnvAuthJWTSecret)
	overrideString(&result.JWKSURL, EnvAuthJWKSURL)
	overrideString(&result.Issuer, EnvAuthIssuer)
	overrideString(&result.Audience, EnvAuthAudience)

	result.JWTSecret = strings.TrimSpace(result.JWTSecret)
	result.JWKSURL = strings.TrimSpace(result.JWKSURL)
	if result.JWTSecret == "" && result.JWKSURL == "" {
		return result, ErrMissingAuthConfig
	}
	return result, nil
}

// StripeConfig holds payment provider credentials and redirect URLs.
type StripeConfig struct {
	SecretKey     string `yaml:"secret-key"`
	WebhookSecret string `yaml:"webhook-secret"`
	AppURL        string `yaml:"app-url"`      // Dashboard origin used for redirects.
	FreeTierID    string `yaml:"free-tier-id"` // Tier restored on cancellation.
}

const defaultAppURL = "http://localhost:3000"

// LoadStripeConfig loads Stripe settings from the config file and env.
func LoadStripeConfig(configPath string) (StripeConfig, error) {
	type fileConfig struct {
		Stripe StripeConfig `yaml:"stripe"`
	}

	var cfg fileConfig
	if errRead := readConfigFile(configPath, &cfg); errRead != nil {
		return StripeConfig{}, errRead
	}
	result := cfg.Stripe

	overrideString(&result.SecretKey, EnvStripeSecretKey)
	overrideString(&result.WebhookSecret, EnvStripeWebhookSecret)
	overrideString(&result.AppURL, EnvAppURL)

	result.AppURL = strings.TrimRight(strings.TrimSpace(result.AppURL), "/")
	if result.AppURL == "" {
		result.AppURL = defaultAppURL
	}
	if strings.TrimSpace(result.FreeTierID) == "" {
		result.FreeTierID = "free"
	}
	return result, nil
}

// providerEnvKeys lists the env vars consulted for platform credentials per provider tag.
var providerEnvKeys = map[string]string{
	"gemini":     "GEMINI_API_KEY",
	"openai":     "OPENAI_API_KEY",
	"deepseek":   "DEEPSEEK_API_KEY",
	"groq":       "GROQ_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
}

// LoadProviderSecrets returns the platform credential for each canonical provider tag.
// Aliases such as `google` are folded into their canonical tag.
// YAML `providers.<tag>.api-key` wins, then `api-key-env`, then the conventional env var.
func LoadProviderSecrets(configPath string) (map[string]string, error) {
	type providerEntry struct {
		APIKey    string `yaml:"api-key"`
		APIKeyEnv string `yaml:"api-key-env"`
	}
	type fileConfig struct {
		Providers map[string]providerEntry `yaml:"providers"`
	}

	var cfg fileConfig
	if errRead := readConfigFile(configPath, &cfg); errRead != nil {
		return nil, errRead
	}

	secrets := make(map[string]string)
	for tag, envKey := range providerEnvKeys {
		if value := strings.TrimSpace(os.Getenv(envKey)); value != "" {
			secrets[tag] = value
		}
	}
	for rawTag, entry := range cfg.Providers {
		tag := provider.NormalizeTag(rawTag)
		if tag == "" {
			continue
		}
		if envKey := strings.TrimSpace(entry.APIKeyEnv); envKey != "" {
			if value := strings.TrimSpace(os.Getenv(envKey)); value != "" {
				secrets[tag] = value
			}
		}
		if value := strings.TrimSpace(entry.APIKey); value != "" {
			secrets[tag] = value
		}
	}
	return secrets, nil
}

// ServerConfig holds HTTP server and logging settings.
type ServerConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	Debug             bool          `yaml:"debug"`
	LogLevel          string        `yaml:"log-level"`
	LoggingToFile     bool          `yaml:"logging-to-file"`
	LogFile           string        `yaml:"log-file"`
	CORSOrigins       []string      `yaml:"cors-origins"`
	GenerationTimeout time.Duration `yaml:"generation-timeout"`
	Moderation        *bool         `yaml:"moderation"`
}

const defaultGenerationTimeout = 60 * time.Second

// ModerationEnabled reports whether topic moderation is on; it defaults to true.
func (c ServerConfig) ModerationEnabled() bool {
	return c.Moderation == nil || *c.Moderation
}

// LoadServerConfig loads server settings; defaultPort applies when the file omits a port.
func LoadServerConfig(configPath string, defaultPort int) (ServerConfig, error) {
	var cfg ServerConfig
	if errRead := readConfigFile(configPath, &cfg); errRead != nil {
		return ServerConfig{}, errRead
	}
	overrideString(&cfg.LogLevel, EnvLogLevel)
	if cfg.Port <= 0 {
		cfg.Port = defaultPort
	}
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
		if cfg.Debug {
			cfg.LogLevel = "debug"
		}
	}
	if cfg.LoggingToFile && strings.TrimSpace(cfg.LogFile) == "" {
		cfg.LogFile = filepath.Join(filepath.Dir(configPath), "logs", "server.log")
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = defaultGenerationTimeout
	}
	return cfg, nil
}

// RateLimitConfig configures per-user request limiting on generation.
type RateLimitConfig struct {
	Limit  int           `yaml:"limit"`  // Requests per window; 0 disables.
	Window time.Duration `yaml:"window"` // Window length.
	Redis  struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
}

const (
	defaultRateLimit       = 20
	defaultRateLimitWindow = time.Minute
)

// LoadRateLimitConfig loads rate limit settings from the config file and env.
func LoadRateLimitConfig(configPath string) (RateLimitConfig, error) {
	type fileConfig struct {
		RateLimit *RateLimitConfig `yaml:"rate-limit"`
	}

	var cfg fileConfig
	if errRead := readConfigFile(configPath, &cfg); errRead != nil {
		return RateLimitConfig{}, errRead
	}
	result := RateLimitConfig{Limit: defaultRateLimit, Window: defaultRateLimitWindow}
	if cfg.RateLimit != nil {
		result = *cfg.RateLimit
	}

	if addr := strings.TrimSpace(os.Getenv(EnvRedisAddr)); addr != "" {
		result.Redis.Addr = addr
		result.Redis.Enabled = true
	}
	overrideString(&result.Redis.Password, EnvRedisPassword)

	if result.Limit < 0 {
		result.Limit = 0
	}
	if result.Window <= 0 {
		result.Window = defaultRateLimitWindow
	}
	if result.Redis.DB < 0 {
		result.Redis.DB = 0
	}
	return result, nil
}

// ErrMissingEncryptionKey indicates no key for sealing stored provider keys is configured.
var ErrMissingEncryptionKey = errors.New("missing key encryption key (set `key-encryption-key` or KEY_ENCRYPTION_KEY)")

// LoadEncryptionKey returns the 32-byte key used to seal stored provider keys.
func LoadEncryptionKey(configPath string) ([]byte, error) {
	type fileConfig struct {
		KeyEncryptionKey string `yaml:"key-encryption-key"`
	}

	var cfg fileConfig
	if errRead := readConfigFile(configPath, &cfg); errRead != nil {
		return nil, errRead
	}
	raw := cfg.KeyEncryptionKey
	overrideString(&raw, EnvKeyEncryptionKey)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMissingEncryptionKey
	}

	key, errDecode := base64.StdEncoding.DecodeString(raw)
	if errDecode != nil {
		return nil, fmt.Errorf("decode key encryption key: %w", errDecode)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key encryption key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

// overrideString replaces *dst with the env value when it is set.
func overrideString(dst *string, envKey string) {
	if value := strings.TrimSpace(os.Getenv(envKey)); value != "" {
		*dst = value
	}
}

// EnvInt reads an integer env var, returning fallback when unset or invalid.
func EnvInt(envKey string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(envKey))
	if raw == "" {
		return fallback
	}
	value, errParse := strconv.Atoi(raw)
	if errParse != nil {
		return fallback
	}
	return value
}
