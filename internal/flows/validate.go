package flows

import (
	"errors"
	"time"

	"github.com/MrEthical07/credcore/jwt"
)

type ValidateMetrics struct {
	ValidateSuccess      int
	ValidateBadSignature int
	ValidateExpired      int
	ValidateMalformed    int
}

type ValidateErrors struct {
	EngineNotReady error
	BadSignature   error
	Expired        error
	Malformed      error
}

// ValidateDeps captures token validation dependencies. Validation is a hot
// path and emits metrics only, never audit events.
type ValidateDeps struct {
	Parse          func(string) (*jwt.Claims, error)
	Now            func() time.Time
	ObserveLatency func(time.Duration)
	MetricInc      func(int)

	Metrics ValidateMetrics
	Errors  ValidateErrors
}

// RunValidateToken parses token and classifies the outcome for metrics.
func RunValidateToken(token string, deps ValidateDeps) (*jwt.Claims, error) {
	if deps.Parse == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}

	start := deps.Now()
	defer func() {
		if deps.ObserveLatency != nil {
			deps.ObserveLatency(deps.Now().Sub(start))
		}
	}()

	if token == "" {
		deps.MetricInc(deps.Metrics.ValidateMalformed)
		return nil, deps.Errors.Malformed
	}

	claims, err := deps.Parse(token)
	if err != nil {
		switch {
		case deps.Errors.BadSignature != nil && errors.Is(err, deps.Errors.BadSignature):
			deps.MetricInc(deps.Metrics.ValidateBadSignature)
		case deps.Errors.Expired != nil && errors.Is(err, deps.Errors.Expired):
			deps.MetricInc(deps.Metrics.ValidateExpired)
		default:
			deps.MetricInc(deps.Metrics.ValidateMalformed)
		}
		return nil, err
	}

	deps.MetricInc(deps.Metrics.ValidateSuccess)
	return claims, nil
}
