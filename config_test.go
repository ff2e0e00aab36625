package credcore

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfigNeedsOnlySecret(t *testing.T) {
	cfg := DefaultConfig()

	var cerr *ConfigError
	if err := cfg.Validate(); !errors.As(err, &cerr) || cerr.Field != "jwt.secret" {
		t.Fatalf("expected jwt.secret ConfigError, got %v", err)
	}

	cfg.JWT.Secret = testJWTSecret
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestConfigValidateFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"short jwt secret", func(c *Config) { c.JWT.Secret = "short" }, "jwt.secret"},
		{"negative ttl", func(c *Config) { c.JWT.TTL = -time.Second }, "jwt.ttl"},
		{"leeway too large", func(c *Config) { c.JWT.Leeway = 3 * time.Minute }, "jwt.leeway"},
		{"previous secrets without key id", func(c *Config) {
			c.JWT.PreviousSecrets = map[string]string{"old": testJWTSecret}
		}, "jwt.key_id"},
		{"previous secret reuses key id", func(c *Config) {
			c.JWT.KeyID = "k1"
			c.JWT.PreviousSecrets = map[string]string{"k1": testJWTSecret}
		}, "jwt.previous_secrets"},
		{"short previous secret", func(c *Config) {
			c.JWT.KeyID = "k2"
			c.JWT.PreviousSecrets = map[string]string{"k1": "short"}
		}, "jwt.previous_secrets.k1"},
		{"weak memory", func(c *Config) { c.Password.Memory = 1024 }, "password.memory"},
		{"zero time", func(c *Config) { c.Password.Time = 0 }, "password.time"},
		{"short salt", func(c *Config) { c.Password.SaltLength = 8 }, "password.salt_length"},
		{"max below min", func(c *Config) { c.Password.MaxLength = 4 }, "password.max_length"},
		{"short cipher secret", func(c *Config) { c.Cipher.Secret = "tiny" }, "cipher.secret"},
		{"legacy without cipher", func(c *Config) { c.Cipher.AllowLegacyRegistration = true }, "cipher.secret"},
		{"template without token", func(c *Config) {
			c.PasswordReset.LinkTemplate = "https://example.com/reset"
		}, "password_reset.link_template"},
		{"template with two tokens", func(c *Config) {
			c.PasswordReset.LinkTemplate = "https://example.com/{token}/{token}"
		}, "password_reset.link_template"},
		{"relative template", func(c *Config) {
			c.PasswordReset.LinkTemplate = "/reset/{token}"
		}, "password_reset.link_template"},
		{"negative reset ttl", func(c *Config) { c.PasswordReset.TTL = -time.Minute }, "password_reset.ttl"},
		{"limit without window", func(c *Config) {
			c.PasswordReset.RequestLimit = 3
			c.PasswordReset.RequestWindow = 0
		}, "password_reset.request_window"},
		{"throttle without attempts", func(c *Config) {
			c.LoginThrottle.Enabled = true
			c.LoginThrottle.MaxAttempts = 0
		}, "login_throttle.max_attempts"},
		{"audit without buffer", func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.BufferSize = 0
		}, "audit.buffer_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.JWT.Secret = testJWTSecret
			tt.mutate(&cfg)

			var cerr *ConfigError
			err := cfg.Validate()
			if !errors.As(err, &cerr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cerr.Field != tt.field {
				t.Fatalf("expected field %q, got %q (%v)", tt.field, cerr.Field, err)
			}
		})
	}
}

func TestConfigCustomLinkTemplate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JWT.Secret = testJWTSecret
	cfg.PasswordReset.LinkTemplate = "https://app.example.com/reset?t={token}"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid template, got %v", err)
	}
}

func TestBuilderRequiresStore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JWT.Secret = testJWTSecret

	_, err := New().WithConfig(cfg).Build()
	var cerr *ConfigError
	if !errors.As(err, &cerr) || cerr.Field != "store" {
		t.Fatalf("expected store ConfigError, got %v", err)
	}
}

func TestBuilderLimitersRequireRedis(t *testing.T) {
	_, rdb := newTestRedis(t)
	cfg := testConfig()
	cfg.LoginThrottle.Enabled = true

	_, err := New().WithConfig(cfg).WithStore(NewRedisStore(rdb, "")).Build()
	var cerr *ConfigError
	if !errors.As(err, &cerr) || cerr.Field != "login_throttle.enabled" {
		t.Fatalf("expected login_throttle ConfigError, got %v", err)
	}
}

func TestBuilderSingleUse(t *testing.T) {
	_, rdb := newTestRedis(t)
	b := New().WithConfig(testConfig()).WithRedis(rdb)

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestBuilderConfigIsCopied(t *testing.T) {
	_, rdb := newTestRedis(t)
	cfg := testConfig()
	cfg.JWT.FixedClaims = map[string]string{"appId": "one"}

	engine, err := New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	cfg.JWT.FixedClaims["appId"] = "two"
	if got := engine.Config().JWT.FixedClaims["appId"]; got != "one" {
		t.Fatalf("engine config aliased caller map: %q", got)
	}
}
