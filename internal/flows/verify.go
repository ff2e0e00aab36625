package flows

import (
	"context"
	"errors"
	"time"
)

type VerifyMetrics struct {
	Success     int
	Failure     int
	NotFound    int
	RateLimited int
}

type VerifyEvents struct {
	Success string
	Failure string
}

type VerifyErrors struct {
	EngineNotReady     error
	InvalidInput       error
	InvalidCredentials error
	NotFound           error
	CorruptRecord      error
}

// VerifyDeps drives a credential check. The same dependency set backs both
// Verify and Login; only Events and Metrics differ.
type VerifyDeps struct {
	HashedScheme    uint8
	EncryptedScheme uint8

	ClientIPFromContext func(context.Context) string
	NormalizeIdentity   func(string) string

	// AcquireAttempt reserves a throttle slot that a failure keeps.
	// ReleaseAttempt returns it when the check ends without a verdict and
	// ResetThrottle clears the identity budget after a success.
	AcquireAttempt  func(context.Context, string, string) error
	ReleaseAttempt  func(context.Context, string, string) error
	ResetThrottle   func(context.Context, string, string) error
	MapLimiterError func(error) error

	GetCredential  func(context.Context, string) (CredentialView, error)
	VerifyHashed   func(password, salt, digest []byte) bool
	BurnHash       func(password []byte)
	EqualEncrypted func(ciphertext, candidate []byte) (bool, error)

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics VerifyMetrics
	Events  VerifyEvents
	Errors  VerifyErrors
}

// RunVerify checks password against the record stored for identity and
// returns the normalised identity on success. A missing identity and a wrong
// password both yield Errors.InvalidCredentials after comparable work.
func RunVerify(ctx context.Context, identity, password string, deps VerifyDeps) (string, error) {
	normalizeVerifyDeps(&deps)

	normalized, err := checkCredential(ctx, identity, password, deps)
	if err != nil {
		return normalized, err
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Success, true, normalized, nil, nil)
	return normalized, nil
}

type LoginResult struct {
	Token     string
	Identity  string
	ExpiresAt time.Time
}

type LoginErrors struct {
	EngineNotReady error
}

type LoginDeps struct {
	Verify     VerifyDeps
	IssueToken func(identity string) (string, time.Time, error)
	Errors     LoginErrors
}

// RunLogin verifies the credential and issues a bearer token for it.
func RunLogin(ctx context.Context, identity, password string, deps LoginDeps) (*LoginResult, error) {
	normalizeVerifyDeps(&deps.Verify)
	if deps.IssueToken == nil {
		return nil, deps.Errors.EngineNotReady
	}
	v := deps.Verify

	normalized, err := checkCredential(ctx, identity, password, v)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := deps.IssueToken(normalized)
	if err != nil {
		v.MetricInc(v.Metrics.Failure)
		v.EmitAudit(ctx, v.Events.Failure, false, normalized, err, func() map[string]string {
			return map[string]string{
				"reason": "token_issue_failed",
			}
		})
		return nil, err
	}

	v.MetricInc(v.Metrics.Success)
	v.EmitAudit(ctx, v.Events.Success, true, normalized, nil, nil)
	return &LoginResult{
		Token:     token,
		Identity:  normalized,
		ExpiresAt: expiresAt,
	}, nil
}

func checkCredential(ctx context.Context, identity, password string, deps VerifyDeps) (string, error) {
	if deps.GetCredential == nil || deps.VerifyHashed == nil || deps.BurnHash == nil || deps.EqualEncrypted == nil {
		return "", deps.Errors.EngineNotReady
	}

	normalized := deps.NormalizeIdentity(identity)
	if normalized == "" || password == "" {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, normalized, deps.Errors.InvalidInput, func() map[string]string {
			return map[string]string{
				"reason": "invalid_input",
			}
		})
		return normalized, deps.Errors.InvalidInput
	}

	ip := deps.ClientIPFromContext(ctx)
	if err := deps.AcquireAttempt(ctx, normalized, ip); err != nil {
		mapped := deps.MapLimiterError(err)
		deps.MetricInc(deps.Metrics.RateLimited)
		deps.EmitAudit(ctx, deps.Events.Failure, false, normalized, mapped, func() map[string]string {
			return map[string]string{
				"reason": "throttled",
			}
		})
		return normalized, mapped
	}

	record, err := deps.GetCredential(ctx, normalized)
	if err != nil {
		switch {
		case errors.Is(err, deps.Errors.NotFound):
			return normalized, rejectCredential(ctx, normalized, password, "not_found", deps.Metrics.NotFound, deps)
		case errors.Is(err, deps.Errors.CorruptRecord):
			return normalized, rejectCredential(ctx, normalized, password, "corrupt", deps.Metrics.Failure, deps)
		}

		_ = deps.ReleaseAttempt(ctx, normalized, ip)
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, normalized, err, func() map[string]string {
			return map[string]string{
				"reason": "store",
			}
		})
		return normalized, err
	}

	var (
		ok     bool
		reason = "mismatch"
	)
	switch record.Scheme {
	case deps.HashedScheme:
		ok = deps.VerifyHashed([]byte(password), record.Salt, record.Secret)
	case deps.EncryptedScheme:
		ok, err = deps.EqualEncrypted(record.Secret, []byte(password))
		if err != nil {
			ok = false
			reason = "integrity"
		}
	default:
		return normalized, rejectCredential(ctx, normalized, password, "corrupt", deps.Metrics.Failure, deps)
	}

	if !ok {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, normalized, deps.Errors.InvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": reason,
			}
		})
		return normalized, deps.Errors.InvalidCredentials
	}

	_ = deps.ResetThrottle(ctx, normalized, ip)
	return normalized, nil
}

// rejectCredential answers a missing or unreadable record like a wrong
// password after burning one hash derivation. Only the audit reason differs.
func rejectCredential(ctx context.Context, normalized, password, reason string, metric int, deps VerifyDeps) error {
	deps.BurnHash([]byte(password))
	deps.MetricInc(metric)
	deps.EmitAudit(ctx, deps.Events.Failure, false, normalized, deps.Errors.InvalidCredentials, func() map[string]string {
		return map[string]string{
			"reason": reason,
		}
	})
	return deps.Errors.InvalidCredentials
}

func normalizeVerifyDeps(deps *VerifyDeps) {
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	deps.NormalizeIdentity = identityNormalizer(deps.NormalizeIdentity)
	if deps.AcquireAttempt == nil {
		deps.AcquireAttempt = func(context.Context, string, string) error { return nil }
	}
	if deps.ReleaseAttempt == nil {
		deps.ReleaseAttempt = func(context.Context, string, string) error { return nil }
	}
	if deps.ResetThrottle == nil {
		deps.ResetThrottle = func(context.Context, string, string) error { return nil }
	}
	if deps.MapLimiterError == nil {
		deps.MapLimiterError = func(err error) error { return err }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
}
