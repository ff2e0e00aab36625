package credcore

import (
	"strings"
	"time"
)

// Scheme selects how a credential's secret is stored.
type Scheme uint8

const (
	// SchemeHashed stores a salted argon2id digest. It is the default and the
	// only scheme accepted by Register unless legacy registration is enabled.
	SchemeHashed Scheme = 1
	// SchemeEncrypted stores an AES-GCM ciphertext of the password. It exists
	// for records migrated from the legacy reversible format.
	SchemeEncrypted Scheme = 2
)

// MaxIdentityBytes bounds a normalised identity.
const MaxIdentityBytes = 320

func (s Scheme) String() string {
	switch s {
	case SchemeHashed:
		return "hashed"
	case SchemeEncrypted:
		return "encrypted"
	default:
		return "unknown"
	}
}

// CredentialRecord is one stored credential.
//
// The plain reset token is never persisted; ResetTokenDigest is the hex
// SHA-256 of the outstanding token, empty when none is outstanding.
type CredentialRecord struct {
	Identity         string
	Scheme           Scheme
	Secret           []byte
	Salt             []byte
	ResetTokenDigest string
	ResetExpiresAt   time.Time
	CreatedAt        time.Time
}

// Validate checks the structural invariants every backend relies on.
func (r *CredentialRecord) Validate() error {
	switch {
	case r == nil:
		return ErrCorruptRecord
	case r.Identity == "":
		return ErrCorruptRecord
	case r.Scheme != SchemeHashed && r.Scheme != SchemeEncrypted:
		return ErrCorruptRecord
	case len(r.Secret) == 0:
		return ErrCorruptRecord
	case r.Scheme == SchemeHashed && len(r.Salt) == 0:
		return ErrCorruptRecord
	case r.Scheme == SchemeEncrypted && len(r.Salt) != 0:
		return ErrCorruptRecord
	}
	return nil
}

// LoginResult is returned by Engine.Login.
type LoginResult struct {
	Token     string
	Identity  string
	ExpiresAt time.Time
}

// NormalizeIdentity trims surrounding whitespace and lower-cases identity.
// Every store access goes through it.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}
