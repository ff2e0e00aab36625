package flows

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ResetBinding is the outstanding reset token bound to an identity. A zero
// ExpiresAt never expires.
type ResetBinding struct {
	Identity  string
	Digest    string
	ExpiresAt time.Time
}

type PasswordResetMetrics struct {
	ResetRequest         int
	ResetRequestNotFound int
	ResetRateLimited     int
	ResetConfirmSuccess  int
	ResetConfirmFailure  int
}

type PasswordResetEvents struct {
	ResetRequest string
	ResetConfirm string
}

type PasswordResetErrors struct {
	EngineNotReady error
	InvalidInput   error
	NotFound       error
	RateLimited    error
	Unavailable    error
}

type PasswordResetDeps struct {
	TTL              time.Duration
	SingleUse        bool
	LinkTemplate     string
	TokenPlaceholder string

	Now                 func() time.Time
	ClientIPFromContext func(context.Context) string
	NormalizeIdentity   func(string) string

	CheckRequestLimiter func(context.Context, string, string) error
	MapLimiterError     func(error) error

	GetCredential func(context.Context, string) (CredentialView, error)
	NewToken      func() (string, error)
	CheckToken    func(string) error
	DigestToken   func(string) string
	BindToken     func(context.Context, ResetBinding) error
	LookupToken   func(context.Context, string) (ResetBinding, error)
	ClearToken    func(context.Context, string, string) error

	SleepEnumerationDelay func(context.Context) error

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics PasswordResetMetrics
	Events  PasswordResetEvents
	Errors  PasswordResetErrors
}

// RunRequestReset binds a fresh token to identity and returns the reset link.
// Any token previously bound to identity stops resolving.
func RunRequestReset(ctx context.Context, identity string, deps PasswordResetDeps) (string, error) {
	normalizePasswordResetDeps(&deps)

	if deps.GetCredential == nil || deps.NewToken == nil || deps.DigestToken == nil || deps.BindToken == nil {
		return "", deps.Errors.EngineNotReady
	}

	normalized := deps.NormalizeIdentity(identity)
	if normalized == "" {
		deps.EmitAudit(ctx, deps.Events.ResetRequest, false, "", deps.Errors.InvalidInput, func() map[string]string {
			return map[string]string{
				"reason": "empty_identity",
			}
		})
		return "", deps.Errors.InvalidInput
	}

	if err := deps.CheckRequestLimiter(ctx, normalized, deps.ClientIPFromContext(ctx)); err != nil {
		mapped := deps.MapLimiterError(err)
		if errors.Is(mapped, deps.Errors.RateLimited) {
			deps.MetricInc(deps.Metrics.ResetRateLimited)
		}
		deps.EmitAudit(ctx, deps.Events.ResetRequest, false, normalized, mapped, func() map[string]string {
			return map[string]string{
				"reason": "limiter",
			}
		})
		return "", mapped
	}

	if _, err := deps.GetCredential(ctx, normalized); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		if !errors.Is(err, deps.Errors.NotFound) {
			deps.EmitAudit(ctx, deps.Events.ResetRequest, false, normalized, err, func() map[string]string {
				return map[string]string{
					"reason": "store",
				}
			})
			return "", err
		}
		if sleepErr := deps.SleepEnumerationDelay(ctx); sleepErr != nil {
			return "", sleepErr
		}
		deps.MetricInc(deps.Metrics.ResetRequestNotFound)
		deps.EmitAudit(ctx, deps.Events.ResetRequest, false, normalized, deps.Errors.NotFound, func() map[string]string {
			return map[string]string{
				"reason": "not_found",
			}
		})
		return "", deps.Errors.NotFound
	}

	token, err := deps.NewToken()
	if err != nil {
		deps.EmitAudit(ctx, deps.Events.ResetRequest, false, normalized, deps.Errors.Unavailable, func() map[string]string {
			return map[string]string{
				"reason": "token_generation_failed",
			}
		})
		return "", deps.Errors.Unavailable
	}

	binding := ResetBinding{
		Identity: normalized,
		Digest:   deps.DigestToken(token),
	}
	if deps.TTL > 0 {
		binding.ExpiresAt = deps.Now().Add(deps.TTL).UTC()
	}

	if err := deps.BindToken(ctx, binding); err != nil {
		deps.EmitAudit(ctx, deps.Events.ResetRequest, false, normalized, err, func() map[string]string {
			return map[string]string{
				"reason": "store",
			}
		})
		return "", err
	}

	deps.MetricInc(deps.Metrics.ResetRequest)
	deps.EmitAudit(ctx, deps.Events.ResetRequest, true, normalized, nil, func() map[string]string {
		if binding.ExpiresAt.IsZero() {
			return nil
		}
		return map[string]string{
			"expires_at": binding.ExpiresAt.Format(time.RFC3339),
		}
	})
	return strings.ReplaceAll(deps.LinkTemplate, deps.TokenPlaceholder, token), nil
}

// RunConfirmReset resolves token to the identity it was issued for. With
// SingleUse the token is consumed; otherwise confirmation is read-only.
func RunConfirmReset(ctx context.Context, token string, deps PasswordResetDeps) (string, error) {
	normalizePasswordResetDeps(&deps)

	if deps.CheckToken == nil || deps.DigestToken == nil || deps.LookupToken == nil || deps.ClearToken == nil {
		return "", deps.Errors.EngineNotReady
	}

	fail := func(reason, identity string, err error) (string, error) {
		deps.MetricInc(deps.Metrics.ResetConfirmFailure)
		deps.EmitAudit(ctx, deps.Events.ResetConfirm, false, identity, err, func() map[string]string {
			return map[string]string{
				"reason": reason,
			}
		})
		return "", err
	}

	if err := deps.CheckToken(token); err != nil {
		return fail("malformed", "", deps.Errors.NotFound)
	}

	digest := deps.DigestToken(token)
	binding, err := deps.LookupToken(ctx, digest)
	if err != nil {
		if errors.Is(err, deps.Errors.NotFound) {
			return fail("unknown", "", deps.Errors.NotFound)
		}
		return fail("store", "", err)
	}

	if !binding.ExpiresAt.IsZero() && deps.Now().After(binding.ExpiresAt) {
		_ = deps.ClearToken(ctx, binding.Identity, digest)
		return fail("expired", binding.Identity, deps.Errors.NotFound)
	}

	if deps.SingleUse {
		if err := deps.ClearToken(ctx, binding.Identity, digest); err != nil {
			if errors.Is(err, deps.Errors.NotFound) {
				return fail("replayed", binding.Identity, deps.Errors.NotFound)
			}
			return fail("store", binding.Identity, err)
		}
	}

	deps.MetricInc(deps.Metrics.ResetConfirmSuccess)
	deps.EmitAudit(ctx, deps.Events.ResetConfirm, true, binding.Identity, nil, nil)
	return binding.Identity, nil
}

func normalizePasswordResetDeps(deps *PasswordResetDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	deps.NormalizeIdentity = identityNormalizer(deps.NormalizeIdentity)
	if deps.CheckRequestLimiter == nil {
		deps.CheckRequestLimiter = func(context.Context, string, string) error { return nil }
	}
	if deps.MapLimiterError == nil {
		deps.MapLimiterError = func(error) error { return deps.Errors.Unavailable }
	}
	if deps.SleepEnumerationDelay == nil {
		deps.SleepEnumerationDelay = func(context.Context) error { return nil }
	}
	if deps.TokenPlaceholder == "" {
		deps.TokenPlaceholder = "{token}"
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
}
