package credcore

import (
	"errors"

	"github.com/MrEthical07/credcore/jwt"
	"github.com/MrEthical07/credcore/reversible"
)

var (
	// ErrNotFound is returned when an identity or reset token is unknown.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials is returned by Verify and Login for both an unknown
	// identity and a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDuplicateIdentity is returned by Register when the identity is taken.
	ErrDuplicateIdentity = errors.New("identity already registered")
	// ErrInvalidInput is returned for empty or out-of-bounds identities and passwords.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnsupportedScheme is returned by Register for an unknown Scheme.
	ErrUnsupportedScheme = errors.New("unsupported credential scheme")
	// ErrLegacySchemeDisabled is returned by Register for SchemeEncrypted
	// unless Cipher.AllowLegacyRegistration is set.
	ErrLegacySchemeDisabled = errors.New("legacy credential scheme disabled")
	// ErrResetRateLimited is returned by RequestReset once the request window is exhausted.
	ErrResetRateLimited = errors.New("password reset rate limited")
	// ErrLoginRateLimited is returned by Verify and Login once the failure budget is exhausted.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrStoreUnavailable wraps every backend transport failure.
	ErrStoreUnavailable = errors.New("credential store unavailable")
	// ErrCorruptRecord is returned by stores when a record cannot be decoded or
	// carries an unknown scheme. Verify and Login report it as
	// ErrInvalidCredentials.
	ErrCorruptRecord = errors.New("credential record corrupt")
	// ErrEngineNotReady is returned when an Engine was not built by Builder.
	ErrEngineNotReady = errors.New("engine not ready")

	// ErrBadSignature, ErrExpired and ErrMalformedToken alias the jwt package
	// sentinels so errors.Is works on either.
	ErrBadSignature   = jwt.ErrBadSignature
	ErrExpired        = jwt.ErrExpired
	ErrMalformedToken = jwt.ErrMalformed

	// ErrIntegrity aliases reversible.ErrIntegrity.
	ErrIntegrity = reversible.ErrIntegrity
)

// ConfigError reports an invalid or missing configuration value. It is fatal:
// an Engine is never built from a configuration that produced one.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Field + ": " + e.Reason
}

func configErr(field, reason string) error {
	return &ConfigError{Field: field, Reason: reason}
}
