package flows

import (
	"context"
	"errors"
	"time"
)

type RegisterRequest struct {
	Identity string
	Password string
	Scheme   uint8
}

// RegisterInput is what the store receives. Salt is nil for the encrypted scheme.
type RegisterInput struct {
	Identity  string
	Scheme    uint8
	Secret    []byte
	Salt      []byte
	CreatedAt time.Time
}

type RegisterMetrics struct {
	RegisterSuccess   int
	RegisterDuplicate int
	RegisterFailure   int
}

type RegisterEvents struct {
	RegisterSuccess   string
	RegisterFailure   string
	RegisterDuplicate string
}

type RegisterErrors struct {
	EngineNotReady       error
	InvalidInput         error
	UnsupportedScheme    error
	LegacySchemeDisabled error
	DuplicateIdentity    error
}

type RegisterDeps struct {
	AllowLegacy      bool
	HashedScheme     uint8
	EncryptedScheme  uint8
	MaxIdentityBytes int

	Now               func() time.Time
	NormalizeIdentity func(string) string

	DerivePassword   func([]byte) ([]byte, []byte, error)
	ProtectPassword  func([]byte) ([]byte, error)
	CreateCredential func(context.Context, RegisterInput) error

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics RegisterMetrics
	Events  RegisterEvents
	Errors  RegisterErrors
}

// RunRegister derives the stored secret for req under the requested scheme
// and creates the record. Uniqueness is decided by the store.
func RunRegister(ctx context.Context, req RegisterRequest, deps RegisterDeps) error {
	normalizeRegisterDeps(&deps)

	if deps.DerivePassword == nil || deps.ProtectPassword == nil || deps.CreateCredential == nil {
		return deps.Errors.EngineNotReady
	}

	identity := deps.NormalizeIdentity(req.Identity)
	if identity == "" || req.Password == "" || (deps.MaxIdentityBytes > 0 && len(identity) > deps.MaxIdentityBytes) {
		deps.MetricInc(deps.Metrics.RegisterFailure)
		deps.EmitAudit(ctx, deps.Events.RegisterFailure, false, identity, deps.Errors.InvalidInput, func() map[string]string {
			return map[string]string{
				"reason": "invalid_input",
			}
		})
		return deps.Errors.InvalidInput
	}

	input := RegisterInput{
		Identity:  identity,
		Scheme:    req.Scheme,
		CreatedAt: deps.Now().UTC(),
	}

	switch req.Scheme {
	case deps.HashedScheme:
		digest, salt, err := deps.DerivePassword([]byte(req.Password))
		if err != nil {
			deps.MetricInc(deps.Metrics.RegisterFailure)
			deps.EmitAudit(ctx, deps.Events.RegisterFailure, false, identity, err, func() map[string]string {
				return map[string]string{
					"reason": "password_policy",
					"scheme": "hashed",
				}
			})
			return err
		}
		input.Secret, input.Salt = digest, salt
	case deps.EncryptedScheme:
		if !deps.AllowLegacy {
			deps.MetricInc(deps.Metrics.RegisterFailure)
			deps.EmitAudit(ctx, deps.Events.RegisterFailure, false, identity, deps.Errors.LegacySchemeDisabled, func() map[string]string {
				return map[string]string{
					"reason": "legacy_disabled",
				}
			})
			return deps.Errors.LegacySchemeDisabled
		}
		ciphertext, err := deps.ProtectPassword([]byte(req.Password))
		if err != nil {
			deps.MetricInc(deps.Metrics.RegisterFailure)
			deps.EmitAudit(ctx, deps.Events.RegisterFailure, false, identity, err, func() map[string]string {
				return map[string]string{
					"reason": "protect_failed",
					"scheme": "encrypted",
				}
			})
			return err
		}
		input.Secret = ciphertext
	default:
		deps.MetricInc(deps.Metrics.RegisterFailure)
		deps.EmitAudit(ctx, deps.Events.RegisterFailure, false, identity, deps.Errors.UnsupportedScheme, nil)
		return deps.Errors.UnsupportedScheme
	}

	if err := deps.CreateCredential(ctx, input); err != nil {
		if errors.Is(err, deps.Errors.DuplicateIdentity) {
			deps.MetricInc(deps.Metrics.RegisterDuplicate)
			deps.EmitAudit(ctx, deps.Events.RegisterDuplicate, false, identity, err, nil)
			return err
		}
		deps.MetricInc(deps.Metrics.RegisterFailure)
		deps.EmitAudit(ctx, deps.Events.RegisterFailure, false, identity, err, func() map[string]string {
			return map[string]string{
				"reason": "store",
			}
		})
		return err
	}

	deps.MetricInc(deps.Metrics.RegisterSuccess)
	deps.EmitAudit(ctx, deps.Events.RegisterSuccess, true, identity, nil, func() map[string]string {
		return map[string]string{
			"scheme": schemeLabel(req.Scheme, deps.HashedScheme),
		}
	})
	return nil
}

func schemeLabel(scheme, hashed uint8) string {
	if scheme == hashed {
		return "hashed"
	}
	return "encrypted"
}

func normalizeRegisterDeps(deps *RegisterDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	deps.NormalizeIdentity = identityNormalizer(deps.NormalizeIdentity)
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
}
