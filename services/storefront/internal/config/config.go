package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config location; STOREFRONT_CONFIG overrides it.
const ConfigPath = "config.yaml"

const (
	defaultAPITimeout   = 15 * time.Second
	defaultSessionTTL   = 30 * 24 * time.Hour
	defaultCookieName   = "bookzone_slot"
	defaultMaxUpload    = 50 << 20
	minSessionSecretLen = 32

	defaultLoginPerMinute    = 10
	defaultRegisterPerMinute = 5
	defaultCheckoutPerMinute = 10
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                       string   `yaml:"port"`
	LogLevel                   string   `yaml:"logLevel"`
	LogFormat                  string   `yaml:"logFormat"`
	APIBaseURL                 string   `yaml:"apiBaseURL"`
	APITimeout                 string   `yaml:"apiTimeout"`
	SessionSecret              string   `yaml:"sessionSecret"`
	SessionTTL                 string   `yaml:"sessionTTL"`
	SessionCookieName          string   `yaml:"sessionCookieName"`
	SessionCookieSecure        bool     `yaml:"sessionCookieSecure"`
	RedisAddr                  string   `yaml:"redisAddr"`
	RedisPassword              string   `yaml:"redisPassword"`
	TrustedProxyCIDRs          []string `yaml:"trustedProxyCidrs"`
	LoginRateLimitPerMinute    int      `yaml:"loginRateLimitPerMinute"`
	RegisterRateLimitPerMinute int      `yaml:"registerRateLimitPerMinute"`
	CheckoutRateLimitPerMinute int      `yaml:"checkoutRateLimitPerMinute"`
	MaxUploadBytes             int64    `yaml:"maxUploadBytes"`
}

// Path returns the config file to load.
func Path() string {
	if v := strings.TrimSpace(os.Getenv("STOREFRONT_CONFIG")); v != "" {
		return v
	}
	return ConfigPath
}

// LoadDotEnv loads .env into the process environment when the file
// exists. Variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads config from path (defaults to config.yaml), applies
// environment overrides and validates the result. A missing file is fine
// when the environment supplies every required key.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	str("STOREFRONT_PORT", &cfg.Port)
	str("STOREFRONT_LOG_LEVEL", &cfg.LogLevel)
	str("STOREFRONT_LOG_FORMAT", &cfg.LogFormat)
	str("STOREFRONT_API_BASE_URL", &cfg.APIBaseURL)
	str("STOREFRONT_API_TIMEOUT", &cfg.APITimeout)
	str("STOREFRONT_SESSION_SECRET", &cfg.SessionSecret)
	str("STOREFRONT_SESSION_TTL", &cfg.SessionTTL)
	str("STOREFRONT_SESSION_COOKIE_NAME", &cfg.SessionCookieName)
	if v := os.Getenv("STOREFRONT_SESSION_COOKIE_SECURE"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.SessionCookieSecure = b
		}
	}
	str("REDIS_ADDR", &cfg.RedisAddr)
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("STOREFRONT_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	num("STOREFRONT_LOGIN_RATE_LIMIT_PER_MINUTE", &cfg.LoginRateLimitPerMinute)
	num("STOREFRONT_REGISTER_RATE_LIMIT_PER_MINUTE", &cfg.RegisterRateLimitPerMinute)
	num("STOREFRONT_CHECKOUT_RATE_LIMIT_PER_MINUTE", &cfg.CheckoutRateLimitPerMinute)
	if v := strings.TrimSpace(os.Getenv("STOREFRONT_MAX_UPLOAD_BYTES")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.SessionCookieName == "" {
		cfg.SessionCookieName = defaultCookieName
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = defaultMaxUpload
	}
	if cfg.LoginRateLimitPerMinute == 0 {
		cfg.LoginRateLimitPerMinute = defaultLoginPerMinute
	}
	if cfg.RegisterRateLimitPerMinute == 0 {
		cfg.RegisterRateLimitPerMinute = defaultRegisterPerMinute
	}
	if cfg.CheckoutRateLimitPerMinute == 0 {
		cfg.CheckoutRateLimitPerMinute = defaultCheckoutPerMinute
	}
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return errors.New("config: apiBaseURL is required (set in config.yaml or STOREFRONT_API_BASE_URL)")
	}
	if u, err := url.Parse(cfg.APIBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: apiBaseURL %q must be an absolute http(s) URL", cfg.APIBaseURL)
	}
	if len(cfg.SessionSecret) < minSessionSecretLen {
		return fmt.Errorf("config: sessionSecret must be at least %d bytes (set STOREFRONT_SESSION_SECRET)", minSessionSecretLen)
	}
	if _, err := cfg.APITimeoutDuration(); err != nil {
		return err
	}
	if _, err := cfg.SessionTTLDuration(); err != nil {
		return err
	}
	if cfg.LoginRateLimitPerMinute < 0 || cfg.RegisterRateLimitPerMinute < 0 || cfg.CheckoutRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if cfg.MaxUploadBytes < 0 {
		return errors.New("config: maxUploadBytes must be >= 0")
	}
	return nil
}

// APITimeoutDuration parses apiTimeout; empty means 15s.
func (c FileConfig) APITimeoutDuration() (time.Duration, error) {
	return parseDuration("apiTimeout", c.APITimeout, defaultAPITimeout)
}

// SessionTTLDuration parses sessionTTL; empty means 30 days.
func (c FileConfig) SessionTTLDuration() (time.Duration, error) {
	return parseDuration("sessionTTL", c.SessionTTL, defaultSessionTTL)
}

func parseDuration(key, raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s duration: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: %s must be positive", key)
	}
	return d, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
