package internaldefs

import (
	"github.com/MrEthical07/credcore"
)

type CounterDef struct {
	ID   credcore.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   credcore.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: credcore.MetricRegisterSuccess, Name: "credcore_register_success_total", Help: "Credentials registered."},
	{ID: credcore.MetricRegisterDuplicate, Name: "credcore_register_duplicate_total", Help: "Registrations rejected because the identity exists."},
	{ID: credcore.MetricRegisterFailure, Name: "credcore_register_failure_total", Help: "Registrations rejected for any other reason."},
	{ID: credcore.MetricVerifySuccess, Name: "credcore_verify_success_total", Help: "Successful credential verifications."},
	{ID: credcore.MetricVerifyFailure, Name: "credcore_verify_failure_total", Help: "Failed credential verifications."},
	{ID: credcore.MetricVerifyNotFound, Name: "credcore_verify_not_found_total", Help: "Verifications against an unknown identity."},
	{ID: credcore.MetricVerifyRateLimited, Name: "credcore_verify_rate_limited_total", Help: "Verifications refused by the failed-login throttle."},
	{ID: credcore.MetricLoginSuccess, Name: "credcore_login_success_total", Help: "Successful logins."},
	{ID: credcore.MetricLoginFailure, Name: "credcore_login_failure_total", Help: "Failed logins."},
	{ID: credcore.MetricLoginNotFound, Name: "credcore_login_not_found_total", Help: "Logins against an unknown identity."},
	{ID: credcore.MetricLoginRateLimited, Name: "credcore_login_rate_limited_total", Help: "Logins refused by the failed-login throttle."},
	{ID: credcore.MetricPasswordResetRequest, Name: "credcore_password_reset_request_total", Help: "Reset links issued."},
	{ID: credcore.MetricPasswordResetNotFound, Name: "credcore_password_reset_not_found_total", Help: "Reset requests for an unknown identity."},
	{ID: credcore.MetricPasswordResetRateLimited, Name: "credcore_password_reset_rate_limited_total", Help: "Reset requests refused by the request limiter."},
	{ID: credcore.MetricPasswordResetConfirmSuccess, Name: "credcore_password_reset_confirm_success_total", Help: "Reset tokens confirmed."},
	{ID: credcore.MetricPasswordResetConfirmFailure, Name: "credcore_password_reset_confirm_failure_total", Help: "Reset confirmations rejected."},
	{ID: credcore.MetricValidateSuccess, Name: "credcore_validate_success_total", Help: "Tokens validated."},
	{ID: credcore.MetricValidateBadSignature, Name: "credcore_validate_bad_signature_total", Help: "Tokens rejected for a bad signature."},
	{ID: credcore.MetricValidateExpired, Name: "credcore_validate_expired_total", Help: "Tokens rejected as expired."},
	{ID: credcore.MetricValidateMalformed, Name: "credcore_validate_malformed_total", Help: "Tokens rejected as malformed."},
	{ID: credcore.MetricStoreUnavailable, Name: "credcore_store_unavailable_total", Help: "Credential store calls that failed in transport."},
}

var HistogramDefs = []HistogramDef{
	{ID: credcore.MetricValidateLatency, Name: "credcore_validate_latency_seconds", Help: "Token validation latency."},
}

// AuditDroppedName is the counter for audit events discarded under backpressure.
const (
	AuditDroppedName = "credcore_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."

	AuditPendingName = "credcore_audit_pending"
	AuditPendingHelp = "Audit events buffered and not yet delivered to the sink."
)

// HistogramUpperBounds are the finite bucket bounds in seconds. The eighth
// bucket is +Inf.
var HistogramUpperBounds = []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// publish one instrument per bucket.
var HistogramBoundSuffix = []string{
	"0_001",
	"0_0025",
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"inf",
}

func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
