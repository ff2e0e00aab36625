package credcore

import (
	"context"
	"time"

	internalflows "github.com/MrEthical07/credcore/internal/flows"
	"github.com/MrEthical07/credcore/jwt"
)

// ValidateToken checks the signature and expiry of a token issued by Login
// and returns its claims. Failures wrap ErrBadSignature, ErrExpired or
// ErrMalformedToken. Validation is stateless and never touches the store.
func (e *Engine) ValidateToken(_ context.Context, token string) (*jwt.Claims, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	return internalflows.RunValidateToken(token, e.flows.Validate)
}

func (e *Engine) validateFlowDeps() internalflows.ValidateDeps {
	return internalflows.ValidateDeps{
		Parse: e.tokens.Validate,
		Now:   time.Now,
		ObserveLatency: func(d time.Duration) {
			e.metrics.Observe(MetricValidateLatency, d)
		},
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		Metrics: internalflows.ValidateMetrics{
			ValidateSuccess:      int(MetricValidateSuccess),
			ValidateBadSignature: int(MetricValidateBadSignature),
			ValidateExpired:      int(MetricValidateExpired),
			ValidateMalformed:    int(MetricValidateMalformed),
		},
		Errors: internalflows.ValidateErrors{
			EngineNotReady: ErrEngineNotReady,
			BadSignature:   ErrBadSignature,
			Expired:        ErrExpired,
			Malformed:      ErrMalformedToken,
		},
	}
}
