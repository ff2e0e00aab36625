package credcore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/MrEthical07/credcore/internal"
	internalflows "github.com/MrEthical07/credcore/internal/flows"
	"github.com/MrEthical07/credcore/internal/limiters"
)

// RequestReset issues a reset token for identity and returns the reset link
// built from PasswordReset.LinkTemplate.
//
// The new token supersedes any token previously issued for identity. An
// unknown identity returns ErrNotFound after a short randomised delay. With
// PasswordReset.RequestLimit set, requests over the window budget return
// ErrResetRateLimited before the identity is looked up.
func (e *Engine) RequestReset(ctx context.Context, identity string) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	return internalflows.RunRequestReset(ctx, identity, e.flows.PasswordReset)
}

// ConfirmReset returns the identity token was issued for, or ErrNotFound.
//
// Confirmation is read-only unless PasswordReset.SingleUse is set, in which
// case the first successful confirmation consumes the token. Tokens past
// their PasswordReset.TTL are ErrNotFound.
func (e *Engine) ConfirmReset(ctx context.Context, token string) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	return internalflows.RunConfirmReset(ctx, token, e.flows.PasswordReset)
}

func (e *Engine) passwordResetFlowDeps() internalflows.PasswordResetDeps {
	cfg := e.config.PasswordReset

	deps := internalflows.PasswordResetDeps{
		TTL:                   cfg.TTL,
		SingleUse:             cfg.SingleUse,
		LinkTemplate:          cfg.LinkTemplate,
		TokenPlaceholder:      TokenPlaceholder,
		Now:                   e.now,
		ClientIPFromContext:   clientIPFromContext,
		NormalizeIdentity:     NormalizeIdentity,
		MapLimiterError:       mapPasswordResetLimiterError,
		GetCredential:         e.getCredential,
		NewToken:              internal.NewResetToken,
		CheckToken:            internal.CheckResetToken,
		DigestToken:           internal.DigestResetToken,
		SleepEnumerationDelay: sleepResetEnumerationDelay,
		BindToken: func(ctx context.Context, b internalflows.ResetBinding) error {
			if err := e.store.BindResetToken(ctx, b.Identity, b.Digest, b.ExpiresAt); err != nil {
				return e.storeError(ctx, "bind_reset", err)
			}
			return nil
		},
		LookupToken: func(ctx context.Context, digest string) (internalflows.ResetBinding, error) {
			record, err := e.store.LookupResetToken(ctx, digest)
			if err != nil {
				return internalflows.ResetBinding{}, e.storeError(ctx, "lookup_reset", err)
			}
			return internalflows.ResetBinding{
				Identity:  record.Identity,
				Digest:    record.ResetTokenDigest,
				ExpiresAt: record.ResetExpiresAt,
			}, nil
		},
		ClearToken: func(ctx context.Context, identity, digest string) error {
			if err := e.store.ClearResetToken(ctx, identity, digest); err != nil {
				return e.storeError(ctx, "clear_reset", err)
			}
			return nil
		},
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: e.emitAudit,
		Metrics: internalflows.PasswordResetMetrics{
			ResetRequest:         int(MetricPasswordResetRequest),
			ResetRequestNotFound: int(MetricPasswordResetNotFound),
			ResetRateLimited:     int(MetricPasswordResetRateLimited),
			ResetConfirmSuccess:  int(MetricPasswordResetConfirmSuccess),
			ResetConfirmFailure:  int(MetricPasswordResetConfirmFailure),
		},
		Events: internalflows.PasswordResetEvents{
			ResetRequest: auditEventResetRequest,
			ResetConfirm: auditEventResetConfirm,
		},
		Errors: internalflows.PasswordResetErrors{
			EngineNotReady: ErrEngineNotReady,
			InvalidInput:   ErrInvalidInput,
			NotFound:       ErrNotFound,
			RateLimited:    ErrResetRateLimited,
			Unavailable:    ErrStoreUnavailable,
		},
	}
	if e.resetLimiter != nil {
		deps.CheckRequestLimiter = e.resetLimiter.CheckRequest
	}
	return deps
}

func mapPasswordResetLimiterError(err error) error {
	switch {
	case errors.Is(err, limiters.ErrResetRateLimited):
		return ErrResetRateLimited
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func sleepResetEnumerationDelay(ctx context.Context) error {
	minMs := int64(20)
	maxMs := int64(40)
	span := maxMs - minMs + 1

	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return err
	}

	delay := time.Duration(minMs+n.Int64()) * time.Millisecond
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
