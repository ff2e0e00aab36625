package credcore

import (
	"context"
	"time"
)

// CredentialStore persists credential records. Implementations must:
//
//   - make Create fail with ErrDuplicateIdentity when the identity exists,
//     atomically with respect to concurrent Create calls;
//   - return ErrNotFound for unknown identities and digests;
//   - make BindResetToken replace any outstanding digest so that the previous
//     one no longer resolves through LookupResetToken;
//   - make ClearResetToken fail with ErrNotFound when digest is not the
//     outstanding token for identity;
//   - wrap transport failures with ErrStoreUnavailable.
//
// Identities passed to a store are already normalised.
type CredentialStore interface {
	Create(ctx context.Context, record *CredentialRecord) error
	Get(ctx context.Context, identity string) (*CredentialRecord, error)
	BindResetToken(ctx context.Context, identity, digest string, expiresAt time.Time) error
	LookupResetToken(ctx context.Context, digest string) (*CredentialRecord, error)
	ClearResetToken(ctx context.Context, identity, digest string) error
}
