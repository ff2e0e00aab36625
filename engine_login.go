package credcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	internalflows "github.com/MrEthical07/credcore/internal/flows"
	"github.com/MrEthical07/credcore/internal/rate"
)

// Verify checks password against the credential stored for identity using
// the record's own scheme. It returns nil on a match.
//
// An unknown identity and a wrong password both return ErrInvalidCredentials,
// and the unknown-identity path performs one throwaway derivation so the two
// cannot be told apart by timing. When the login throttle is enabled, an
// identity (or client IP) over its failure budget gets ErrLoginRateLimited
// before any lookup.
func (e *Engine) Verify(ctx context.Context, identity, password string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	_, err := internalflows.RunVerify(ctx, identity, password, e.flows.Verify)
	return err
}

// Login verifies the credential exactly as Verify does and, on success,
// issues a signed bearer token for the normalised identity.
func (e *Engine) Login(ctx context.Context, identity, password string) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	result, err := internalflows.RunLogin(ctx, identity, password, e.flows.Login)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		Token:     result.Token,
		Identity:  result.Identity,
		ExpiresAt: result.ExpiresAt,
	}, nil
}

func (e *Engine) verifyFlowDeps() internalflows.VerifyDeps {
	deps := internalflows.VerifyDeps{
		HashedScheme:        uint8(SchemeHashed),
		EncryptedScheme:     uint8(SchemeEncrypted),
		ClientIPFromContext: clientIPFromContext,
		NormalizeIdentity:   NormalizeIdentity,
		MapLimiterError:     mapLoginThrottleError,
		GetCredential:       e.getCredential,
		VerifyHashed:        e.hasher.Verify,
		BurnHash:            e.hasher.Burn,
		EqualEncrypted: func(ciphertext, candidate []byte) (bool, error) {
			if e.cipher == nil {
				return false, ErrIntegrity
			}
			return e.cipher.Equal(ciphertext, candidate)
		},
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: e.emitAudit,
		Metrics: internalflows.VerifyMetrics{
			Success:     int(MetricVerifySuccess),
			Failure:     int(MetricVerifyFailure),
			NotFound:    int(MetricVerifyNotFound),
			RateLimited: int(MetricVerifyRateLimited),
		},
		Events: internalflows.VerifyEvents{
			Success: auditEventVerifySuccess,
			Failure: auditEventVerifyFailure,
		},
		Errors: internalflows.VerifyErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidInput:       ErrInvalidInput,
			InvalidCredentials: ErrInvalidCredentials,
			NotFound:           ErrNotFound,
			CorruptRecord:      ErrCorruptRecord,
		},
	}
	if e.throttle != nil {
		deps.AcquireAttempt = e.throttle.Acquire
		deps.ReleaseAttempt = e.throttle.Release
		deps.ResetThrottle = e.throttle.Reset
	}
	return deps
}

// loginVerifyDeps shares the verify wiring with its own events and counters.
func (e *Engine) loginVerifyDeps(verify internalflows.VerifyDeps) internalflows.VerifyDeps {
	verify.Metrics = internalflows.VerifyMetrics{
		Success:     int(MetricLoginSuccess),
		Failure:     int(MetricLoginFailure),
		NotFound:    int(MetricLoginNotFound),
		RateLimited: int(MetricLoginRateLimited),
	}
	verify.Events = internalflows.VerifyEvents{
		Success: auditEventLoginSuccess,
		Failure: auditEventLoginFailure,
	}
	return verify
}

func (e *Engine) issueToken(identity string) (string, time.Time, error) {
	token, claims, err := e.tokens.IssueClaims(identity, nil, 0)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("issue token: %w", err)
	}
	return token, claims.ExpiresAt.Time.UTC(), nil
}

func mapLoginThrottleError(err error) error {
	switch {
	case errors.Is(err, rate.ErrRateLimited):
		return ErrLoginRateLimited
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}
