package credcore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/credcore/internal/audit"
	internalflows "github.com/MrEthical07/credcore/internal/flows"
	"github.com/MrEthical07/credcore/internal/limiters"
	"github.com/MrEthical07/credcore/internal/rate"
	"github.com/MrEthical07/credcore/jwt"
	"github.com/MrEthical07/credcore/password"
	"github.com/MrEthical07/credcore/reversible"
)

// Engine is the credential service. It is immutable after Builder.Build and
// safe for concurrent use.
type Engine struct {
	config       Config
	store        CredentialStore
	hasher       *password.Argon2
	cipher       *reversible.AESGCM
	tokens       *jwt.Manager
	throttle     *rate.Limiter
	resetLimiter *limiters.PasswordResetLimiter
	audit        *audit.Dispatcher
	metrics      *Metrics
	logger       *slog.Logger
	now          func() time.Time

	flows internalflows.Deps
}

// Close flushes pending audit events and stops the dispatcher. The store and
// Redis client belong to the caller and stay open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Config returns a copy of the configuration the engine was built with.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditPending reports audit events buffered but not yet handed to the sink.
func (e *Engine) AuditPending() int {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Pending()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// ready reports whether e came out of Builder.Build.
func (e *Engine) ready() bool {
	return e != nil && e.store != nil && e.hasher != nil && e.tokens != nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) buildFlowDeps() internalflows.Deps {
	verify := e.verifyFlowDeps()
	return internalflows.Deps{
		Register: e.registerFlowDeps(),
		Verify:   verify,
		Login: internalflows.LoginDeps{
			Verify:     e.loginVerifyDeps(verify),
			IssueToken: e.issueToken,
			Errors: internalflows.LoginErrors{
				EngineNotReady: ErrEngineNotReady,
			},
		},
		PasswordReset: e.passwordResetFlowDeps(),
		Validate:      e.validateFlowDeps(),
	}
}

// getCredential is the single read path from the store into the flows.
func (e *Engine) getCredential(ctx context.Context, identity string) (internalflows.CredentialView, error) {
	record, err := e.store.Get(ctx, identity)
	if err != nil {
		return internalflows.CredentialView{}, e.storeError(ctx, "get", err)
	}
	return internalflows.CredentialView{
		Identity: record.Identity,
		Scheme:   uint8(record.Scheme),
		Secret:   record.Secret,
		Salt:     record.Salt,
	}, nil
}

// storeError counts and logs backend outages. Expected outcomes pass through
// untouched.
func (e *Engine) storeError(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, ErrStoreUnavailable):
		e.metricInc(MetricStoreUnavailable)
		e.logger.ErrorContext(ctx, "credential store unavailable", "op", op, "error", err)
	case errors.Is(err, ErrCorruptRecord):
		e.logger.ErrorContext(ctx, "credential record corrupt", "op", op, "error", err)
	}
	return err
}
