package credcore

import (
	"context"
	"errors"
	"fmt"

	internalflows "github.com/MrEthical07/credcore/internal/flows"
	"github.com/MrEthical07/credcore/password"
)

// Register stores a new credential for identity under scheme.
//
// SchemeHashed derives a salted argon2id digest. SchemeEncrypted seals the
// password with the legacy cipher and is refused with ErrLegacySchemeDisabled
// unless Cipher.AllowLegacyRegistration is set. A taken identity yields
// ErrDuplicateIdentity; the store decides uniqueness, so concurrent
// registrations of one identity have exactly one winner.
func (e *Engine) Register(ctx context.Context, identity, pass string, scheme Scheme) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return internalflows.RunRegister(ctx, internalflows.RegisterRequest{
		Identity: identity,
		Password: pass,
		Scheme:   uint8(scheme),
	}, e.flows.Register)
}

func (e *Engine) registerFlowDeps() internalflows.RegisterDeps {
	return internalflows.RegisterDeps{
		AllowLegacy:       e.config.Cipher.AllowLegacyRegistration && e.cipher != nil,
		HashedScheme:      uint8(SchemeHashed),
		EncryptedScheme:   uint8(SchemeEncrypted),
		MaxIdentityBytes:  MaxIdentityBytes,
		Now:               e.now,
		NormalizeIdentity: NormalizeIdentity,
		DerivePassword: func(pass []byte) ([]byte, []byte, error) {
			digest, salt, err := e.hasher.DeriveNew(pass)
			if errors.Is(err, password.ErrPasswordTooShort) || errors.Is(err, password.ErrPasswordTooLong) {
				return nil, nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
			}
			return digest, salt, err
		},
		ProtectPassword: func(pass []byte) ([]byte, error) {
			if e.cipher == nil {
				return nil, ErrLegacySchemeDisabled
			}
			return e.cipher.Protect(pass)
		},
		CreateCredential: func(ctx context.Context, in internalflows.RegisterInput) error {
			err := e.store.Create(ctx, &CredentialRecord{
				Identity:  in.Identity,
				Scheme:    Scheme(in.Scheme),
				Secret:    in.Secret,
				Salt:      in.Salt,
				CreatedAt: in.CreatedAt,
			})
			if err != nil {
				return e.storeError(ctx, "create", err)
			}
			return nil
		},
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: e.emitAudit,
		Metrics: internalflows.RegisterMetrics{
			RegisterSuccess:   int(MetricRegisterSuccess),
			RegisterDuplicate: int(MetricRegisterDuplicate),
			RegisterFailure:   int(MetricRegisterFailure),
		},
		Events: internalflows.RegisterEvents{
			RegisterSuccess:   auditEventRegisterSuccess,
			RegisterFailure:   auditEventRegisterFailure,
			RegisterDuplicate: auditEventRegisterDuplicate,
		},
		Errors: internalflows.RegisterErrors{
			EngineNotReady:       ErrEngineNotReady,
			InvalidInput:         ErrInvalidInput,
			UnsupportedScheme:    ErrUnsupportedScheme,
			LegacySchemeDisabled: ErrLegacySchemeDisabled,
			DuplicateIdentity:    ErrDuplicateIdentity,
		},
	}
}
