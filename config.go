package credcore

import (
	"maps"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/credcore/jwt"
	"github.com/MrEthical07/credcore/password"
	"github.com/MrEthical07/credcore/reversible"
)

// DefaultLinkTemplate is the reset link shape. "{token}" is replaced by the
// generated token.
const (
	DefaultLinkTemplate = "https://localhost:7127/changepassword/{token}"
	TokenPlaceholder    = "{token}"
)

// Config is the engine configuration. Field tags name the keys used by the
// config package loader.
type Config struct {
	JWT           JWTConfig           `mapstructure:"jwt"`
	Password      PasswordConfig      `mapstructure:"password"`
	Cipher        CipherConfig        `mapstructure:"cipher"`
	PasswordReset PasswordResetConfig `mapstructure:"password_reset"`
	LoginThrottle LoginThrottleConfig `mapstructure:"login_throttle"`
	Audit         AuditConfig         `mapstructure:"audit"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures bearer token issuance. Issuer and Audience are only
// enforced on validation when set.
type JWTConfig struct {
	Secret      string            `mapstructure:"secret"`
	TTL         time.Duration     `mapstructure:"ttl"`
	Issuer      string            `mapstructure:"issuer"`
	Audience    string            `mapstructure:"audience"`
	Leeway      time.Duration     `mapstructure:"leeway"`
	FixedClaims map[string]string `mapstructure:"fixed_claims"`

	// KeyID tags issued tokens. PreviousSecrets maps retired key ids to their
	// secrets so tokens signed before a rotation keep validating.
	KeyID           string            `mapstructure:"key_id"`
	PreviousSecrets map[string]string `mapstructure:"previous_secrets"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig is the argon2id work factor and password length policy.
type PasswordConfig struct {
	Memory      uint32 `mapstructure:"memory"` // in KB
	Time        uint32 `mapstructure:"time"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
	MinLength   int    `mapstructure:"min_length"`
	MaxLength   int    `mapstructure:"max_length"`
}

// CipherConfig holds the secret for the legacy reversible scheme. Without a
// secret, encrypted records cannot be verified.
type CipherConfig struct {
	Secret                  string `mapstructure:"secret"`
	AllowLegacyRegistration bool   `mapstructure:"allow_legacy_registration"`
}

/*
====================================
PASSWORD RESET CONFIG
====================================
*/

// PasswordResetConfig controls reset links. The zero values of TTL,
// SingleUse and RequestLimit give the read-only, non-expiring behaviour.
type PasswordResetConfig struct {
	LinkTemplate     string        `mapstructure:"link_template"`
	TTL              time.Duration `mapstructure:"ttl"`
	SingleUse        bool          `mapstructure:"single_use"`
	RequestLimit     int           `mapstructure:"request_limit"`
	RequestWindow    time.Duration `mapstructure:"request_window"`
	EnableIPThrottle bool          `mapstructure:"enable_ip_throttle"`
}

// LoginThrottleConfig bounds failed Verify/Login attempts per identity and,
// optionally, per client IP. It requires a Redis client on the Builder.
type LoginThrottleConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
	EnableIPThrottle bool          `mapstructure:"enable_ip_throttle"`
}

/*
====================================
AUDIT & METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
	DropIfFull bool `mapstructure:"drop_if_full"`
}

type MetricsConfig struct {
	Enabled                 bool `mapstructure:"enabled"`
	EnableLatencyHistograms bool `mapstructure:"enable_latency_histograms"`
}

// DefaultConfig returns a configuration with every value set except the
// secrets, which have no safe default.
func DefaultConfig() Config {
	pw := password.DefaultConfig()

	return Config{
		JWT: JWTConfig{
			TTL: jwt.DefaultTTL,
		},
		Password: PasswordConfig{
			Memory:      pw.Memory,
			Time:        pw.Time,
			Parallelism: pw.Parallelism,
			SaltLength:  pw.SaltLength,
			KeyLength:   pw.KeyLength,
			MinLength:   pw.MinPasswordBytes,
			MaxLength:   pw.MaxPasswordBytes,
		},
		PasswordReset: PasswordResetConfig{
			LinkTemplate:  DefaultLinkTemplate,
			RequestWindow: time.Hour,
		},
		LoginThrottle: LoginThrottleConfig{
			MaxAttempts: 10,
			Cooldown:    15 * time.Minute,
		},
		Audit: AuditConfig{
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

// Validate reports the first invalid value as a *ConfigError.
func (c *Config) Validate() error {
	if len(c.JWT.Secret) == 0 {
		return configErr("jwt.secret", "is required")
	}
	if len(c.JWT.Secret) < jwt.MinSecretBytes {
		return configErr("jwt.secret", "must be at least 32 bytes")
	}
	if c.JWT.TTL < 0 {
		return configErr("jwt.ttl", "must be >= 0")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return configErr("jwt.leeway", "must be between 0 and 2m")
	}
	if len(c.JWT.PreviousSecrets) > 0 && strings.TrimSpace(c.JWT.KeyID) == "" {
		return configErr("jwt.key_id", "is required when previous_secrets are set")
	}
	if _, ok := c.JWT.PreviousSecrets[c.JWT.KeyID]; ok && c.JWT.KeyID != "" {
		return configErr("jwt.previous_secrets", "must not contain the current key_id")
	}
	for kid, secret := range c.JWT.PreviousSecrets {
		if len(secret) < jwt.MinSecretBytes {
			return configErr("jwt.previous_secrets."+kid, "must be at least 32 bytes")
		}
	}

	if c.Password.Memory < 8*1024 {
		return configErr("password.memory", "must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return configErr("password.time", "must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return configErr("password.parallelism", "must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return configErr("password.salt_length", "must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return configErr("password.key_length", "must be >= 16")
	}
	if c.Password.MinLength < 1 {
		return configErr("password.min_length", "must be >= 1")
	}
	if c.Password.MaxLength != 0 && c.Password.MaxLength < c.Password.MinLength {
		return configErr("password.max_length", "must be >= min_length")
	}

	if c.Cipher.Secret != "" && len(c.Cipher.Secret) < reversible.MinSecretBytes {
		return configErr("cipher.secret", "must be at least 16 bytes")
	}
	if c.Cipher.AllowLegacyRegistration && c.Cipher.Secret == "" {
		return configErr("cipher.secret", "is required when allow_legacy_registration is set")
	}

	if err := validateLinkTemplate(c.PasswordReset.LinkTemplate); err != nil {
		return err
	}
	if c.PasswordReset.TTL < 0 {
		return configErr("password_reset.ttl", "must be >= 0")
	}
	if c.PasswordReset.RequestLimit < 0 {
		return configErr("password_reset.request_limit", "must be >= 0")
	}
	if c.PasswordReset.RequestLimit > 0 && c.PasswordReset.RequestWindow <= 0 {
		return configErr("password_reset.request_window", "must be > 0 when request_limit is set")
	}

	if c.LoginThrottle.Enabled {
		if c.LoginThrottle.MaxAttempts <= 0 {
			return configErr("login_throttle.max_attempts", "must be > 0")
		}
		if c.LoginThrottle.Cooldown <= 0 {
			return configErr("login_throttle.cooldown", "must be > 0")
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return configErr("audit.buffer_size", "must be > 0 when audit is enabled")
	}

	return nil
}

func validateLinkTemplate(tmpl string) error {
	if strings.Count(tmpl, TokenPlaceholder) != 1 {
		return configErr("password_reset.link_template", "must contain {token} exactly once")
	}
	u, err := url.Parse(strings.Replace(tmpl, TokenPlaceholder, "t", 1))
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return configErr("password_reset.link_template", "must be an absolute http(s) URL")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.FixedClaims = maps.Clone(cfg.JWT.FixedClaims)
	out.JWT.PreviousSecrets = maps.Clone(cfg.JWT.PreviousSecrets)
	return out
}
