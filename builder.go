package credcore

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/MrEthical07/credcore/internal/audit"
	"github.com/MrEthical07/credcore/internal/limiters"
	"github.com/MrEthical07/credcore/internal/rate"
	"github.com/MrEthical07/credcore/jwt"
	"github.com/MrEthical07/credcore/password"
	"github.com/MrEthical07/credcore/reversible"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. Configure it during initialization, call
// Build once, and discard it.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	store     CredentialStore
	auditSink AuditSink
	logger    *slog.Logger
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the client used by the login throttle and the reset
// request limiter. Without WithStore it also backs the credential store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore overrides the credential store.
func (b *Builder) WithStore(store CredentialStore) *Builder {
	b.store = store
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the operational logger. Secrets and tokens are never logged.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces time.Now for token issuance, reset expiry and record
// timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns an immutable Engine.
// Configuration problems are reported as *ConfigError.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.store == nil && b.redis == nil {
		return nil, configErr("store", "a CredentialStore or redis client is required")
	}
	if b.redis == nil && cfg.LoginThrottle.Enabled {
		return nil, configErr("login_throttle.enabled", "requires a redis client")
	}
	if b.redis == nil && cfg.PasswordReset.RequestLimit > 0 {
		return nil, configErr("password_reset.request_limit", "requires a redis client")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	store := b.store
	if store == nil {
		store = NewRedisStore(b.redis, "").WithClock(now)
	} else if rs, ok := store.(*RedisStore); ok {
		store = rs.WithClock(now)
	}

	// -------- PASSWORD HASHER --------
	hasher, err := password.NewArgon2(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MinPasswordBytes: cfg.Password.MinLength,
		MaxPasswordBytes: cfg.Password.MaxLength,
	})
	if err != nil {
		return nil, configErr("password", err.Error())
	}

	// -------- LEGACY CIPHER --------
	var cipher *reversible.AESGCM
	if cfg.Cipher.Secret != "" {
		key, err := reversible.DeriveKey(cfg.Cipher.Secret)
		if err != nil {
			return nil, configErr("cipher.secret", err.Error())
		}
		cipher, err = reversible.NewAESGCM(key)
		if err != nil {
			return nil, configErr("cipher.secret", err.Error())
		}
	}

	// -------- TOKEN MANAGER --------
	var verifyKeys map[string][]byte
	if len(cfg.JWT.PreviousSecrets) > 0 {
		verifyKeys = make(map[string][]byte, len(cfg.JWT.PreviousSecrets)+1)
		for kid, secret := range cfg.JWT.PreviousSecrets {
			verifyKeys[kid] = []byte(secret)
		}
		verifyKeys[cfg.JWT.KeyID] = []byte(cfg.JWT.Secret)
	}
	tokens, err := jwt.NewManager(jwt.Config{
		Secret:      []byte(cfg.JWT.Secret),
		DefaultTTL:  cfg.JWT.TTL,
		Issuer:      cfg.JWT.Issuer,
		Audience:    cfg.JWT.Audience,
		Leeway:      cfg.JWT.Leeway,
		FixedClaims: cfg.JWT.FixedClaims,
		KeyID:       cfg.JWT.KeyID,
		VerifyKeys:  verifyKeys,
		Now:         now,
	})
	if err != nil {
		return nil, configErr("jwt", err.Error())
	}

	engine := &Engine{
		config:  cfg,
		store:   store,
		hasher:  hasher,
		cipher:  cipher,
		tokens:  tokens,
		metrics: NewMetrics(cfg.Metrics),
		logger:  logger,
		now:     now,
	}

	if b.redis != nil {
		if cfg.LoginThrottle.Enabled {
			engine.throttle = rate.New(b.redis, rate.Config{
				EnableIPThrottle: cfg.LoginThrottle.EnableIPThrottle,
				MaxAttempts:      cfg.LoginThrottle.MaxAttempts,
				Cooldown:         cfg.LoginThrottle.Cooldown,
			})
		}
		if cfg.PasswordReset.RequestLimit > 0 {
			engine.resetLimiter = limiters.NewPasswordResetLimiter(b.redis, limiters.PasswordResetConfig{
				EnableIdentityThrottle: true,
				EnableIPThrottle:       cfg.PasswordReset.EnableIPThrottle,
				Window:                 cfg.PasswordReset.RequestWindow,
				MaxRequests:            cfg.PasswordReset.RequestLimit,
			})
		}
	}

	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		OnDrop: func(ev audit.Event) {
			logger.Warn("audit event dropped", "event_type", ev.EventType)
		},
	}, b.auditSink)

	engine.flows = engine.buildFlowDeps()

	b.built = true

	return engine, nil
}
