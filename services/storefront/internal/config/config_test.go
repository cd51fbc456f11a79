package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAMLWithDefaults(t *testing.T) {
	path := writeConfig(t, `
apiBaseURL: https://api.bookzone.test/api
sessionSecret: `+testSecret+`
trustedProxyCidrs: ["10.0.0.0/8"]
loginRateLimitPerMinute: 5
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || cfg.SessionCookieName != "bookzone_slot" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.LoginRateLimitPerMinute != 5 || len(cfg.TrustedProxyCIDRs) != 1 {
		t.Fatalf("yaml values lost: %+v", cfg)
	}
	if cfg.RegisterRateLimitPerMinute != 5 || cfg.CheckoutRateLimitPerMinute != 10 {
		t.Fatalf("limit defaults not applied: %+v", cfg)
	}
	ttl, _ := cfg.SessionTTLDuration()
	timeout, _ := cfg.APITimeoutDuration()
	if ttl != 30*24*time.Hour || timeout != 15*time.Second {
		t.Fatalf("unexpected durations ttl=%v timeout=%v", ttl, timeout)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "apiBaseURL: https://yaml.test\nsessionSecret: "+testSecret+"\n")
	t.Setenv("STOREFRONT_API_BASE_URL", "https://env.test/api")
	t.Setenv("STOREFRONT_SESSION_TTL", "2h")
	t.Setenv("STOREFRONT_SESSION_COOKIE_SECURE", "true")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("STOREFRONT_TRUSTED_PROXY_CIDRS", "10.0.0.0/8, 172.16.0.0/12")
	t.Setenv("STOREFRONT_CHECKOUT_RATE_LIMIT_PER_MINUTE", "3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIBaseURL != "https://env.test/api" || cfg.RedisAddr != "redis:6379" || !cfg.SessionCookieSecure {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if len(cfg.TrustedProxyCIDRs) != 2 || cfg.CheckoutRateLimitPerMinute != 3 {
		t.Fatalf("list/number overrides not applied: %+v", cfg)
	}
	if ttl, _ := cfg.SessionTTLDuration(); ttl != 2*time.Hour {
		t.Fatalf("ttl = %v", ttl)
	}
}

func TestLoadWithoutFileUsesEnvironment(t *testing.T) {
	t.Setenv("STOREFRONT_API_BASE_URL", "http://localhost:5000/api")
	t.Setenv("STOREFRONT_SESSION_SECRET", testSecret)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err != nil {
		t.Fatalf("load without file: %v", err)
	}
}

func TestValidateConfig(t *testing.T) {
	base := FileConfig{APIBaseURL: "https://api.test", SessionSecret: testSecret}
	cases := map[string]func(*FileConfig){
		"missing api url":   func(c *FileConfig) { c.APIBaseURL = "" },
		"relative api url":  func(c *FileConfig) { c.APIBaseURL = "/api" },
		"short secret":      func(c *FileConfig) { c.SessionSecret = "short" },
		"bad ttl":           func(c *FileConfig) { c.SessionTTL = "forever" },
		"negative timeout":  func(c *FileConfig) { c.APITimeout = "-1s" },
		"negative limit":    func(c *FileConfig) { c.LoginRateLimitPerMinute = -1 },
		"negative max size": func(c *FileConfig) { c.MaxUploadBytes = -1 },
	}
	for name, mutate := range cases {
		cfg := base
		mutate(&cfg)
		if err := validateConfig(cfg); err == nil {
			t.Fatalf("%s: expected validation error", name)
		} else if !strings.HasPrefix(err.Error(), "config:") {
			t.Fatalf("%s: unexpected error %q", name, err)
		}
	}
	if err := validateConfig(base); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("STOREFRONT_DOTENV_PROBE=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("STOREFRONT_DOTENV_PROBE", "")
	os.Unsetenv("STOREFRONT_DOTENV_PROBE")
	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if got := os.Getenv("STOREFRONT_DOTENV_PROBE"); got != "from-file" {
		t.Fatalf("dotenv value = %q", got)
	}
}
