package jwt

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultTTL is the token lifetime used when Issue is called with ttl <= 0
	// and Config.DefaultTTL is unset.
	DefaultTTL = 30 * 24 * time.Hour

	// MinSecretBytes is the shortest HMAC secret accepted.
	MinSecretBytes = 32

	maxLeeway = 2 * time.Minute
)

var (
	ErrBadSignature = errors.New("token signature invalid")
	ErrExpired      = errors.New("token expired")
	ErrMalformed    = errors.New("token malformed")
)

// Config configures a Manager.
type Config struct {
	Secret     []byte
	DefaultTTL time.Duration
	Issuer     string
	Audience   string
	Leeway     time.Duration

	// FixedClaims are merged into the extension map of every issued token.
	// Per-call extra claims win on key collision.
	FixedClaims map[string]string

	// KeyID is written to the kid header. VerifyKeys, when set, lists every
	// secret accepted during validation by kid and must contain KeyID.
	KeyID      string
	VerifyKeys map[string][]byte

	Now func() time.Time
}

// Claims is the payload of an issued token.
type Claims struct {
	Identity string            `json:"identity"`
	Extra    map[string]string `json:"ext,omitempty"`
	jwt.RegisteredClaims
}

// Manager issues and validates tokens. It is immutable after NewManager.
type Manager struct {
	config Config
	now    func() time.Time
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < MinSecretBytes {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", MinSecretBytes)
	}
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.DefaultTTL < 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, errors.New("invalid leeway configuration")
	}

	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	for kid, key := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("verify key map contains empty kid")
		}
		if len(key) < MinSecretBytes {
			return nil, fmt.Errorf("verify key %q must be at least %d bytes", kid, MinSecretBytes)
		}
	}
	if len(cfg.VerifyKeys) > 0 {
		if cfg.KeyID == "" {
			return nil, errors.New("VerifyKeys requires KeyID")
		}
		current, ok := cfg.VerifyKeys[cfg.KeyID]
		if !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
		if subtle.ConstantTimeCompare(current, cfg.Secret) != 1 {
			return nil, errors.New("VerifyKeys[KeyID] must match Secret")
		}
		cfg.VerifyKeys = maps.Clone(cfg.VerifyKeys)
	}

	cfg.Secret = append([]byte(nil), cfg.Secret...)
	cfg.FixedClaims = maps.Clone(cfg.FixedClaims)

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Manager{config: cfg, now: now}, nil
}

// Issue signs a token for identity. ttl <= 0 selects the configured default.
func (m *Manager) Issue(identity string, extra map[string]string, ttl time.Duration) (string, error) {
	token, _, err := m.IssueClaims(identity, extra, ttl)
	return token, err
}

// IssueClaims is Issue that also returns the signed claims.
func (m *Manager) IssueClaims(identity string, extra map[string]string, ttl time.Duration) (string, *Claims, error) {
	if identity == "" {
		return "", nil, errors.New("empty identity")
	}
	if ttl <= 0 {
		ttl = m.config.DefaultTTL
	}

	issuedAt := m.now()
	claims := Claims{
		Identity: identity,
		Extra:    m.mergeExtra(extra),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}

	signed, err := token.SignedString(m.config.Secret)
	if err != nil {
		return "", nil, err
	}
	return signed, &claims, nil
}

// Validate checks signature, expiry and the configured issuer/audience and
// returns the claims of a valid token. A token is expired once now is past
// exp plus the leeway; at exactly exp it still validates.
func (m *Manager) Validate(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, m.keyFunc)
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Identity == "" {
		return nil, ErrMalformed
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing exp", ErrMalformed)
	}

	now := m.now()
	if now.After(claims.ExpiresAt.Add(m.config.Leeway)) {
		return nil, fmt.Errorf("%w: expired at %s", ErrExpired, claims.ExpiresAt.UTC().Format(time.RFC3339))
	}

	options := []jwt.ParserOption{
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}
	if err := jwt.NewValidator(options...).Validate(expiryChecked{claims}); err != nil {
		return nil, classify(err)
	}

	return claims, nil
}

// expiryChecked hides exp from the library validator, whose check is
// now < exp; expiry has already been compared above.
type expiryChecked struct{ *Claims }

func (expiryChecked) GetExpirationTime() (*jwt.NumericDate, error) { return nil, nil }

// DefaultTTL returns the lifetime applied when Issue receives ttl <= 0.
func (m *Manager) DefaultTTL() time.Duration {
	return m.config.DefaultTTL
}

func (m *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	if len(m.config.VerifyKeys) == 0 && m.config.KeyID == "" {
		return m.config.Secret, nil
	}

	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("missing kid")
	}
	if len(m.config.VerifyKeys) > 0 {
		key, ok := m.config.VerifyKeys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return key, nil
	}
	if kid != m.config.KeyID {
		return nil, errors.New("unknown kid")
	}
	return m.config.Secret, nil
}

func (m *Manager) mergeExtra(extra map[string]string) map[string]string {
	if len(m.config.FixedClaims) == 0 && len(extra) == 0 {
		return nil
	}

	merged := make(map[string]string, len(m.config.FixedClaims)+len(extra))
	maps.Copy(merged, m.config.FixedClaims)
	maps.Copy(merged, extra)
	return merged
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
