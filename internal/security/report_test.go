package security

import (
	"testing"
	"time"
)

func TestBuildReportDefaultsWarn(t *testing.T) {
	r := BuildReport(ReportInput{SigningAlgorithm: "HS256", TokenTTL: time.Hour})

	if r.ResetTokenExpires || r.ResetSingleUse || r.LoginThrottleActive {
		t.Fatalf("unexpected hardening flags: %+v", r)
	}
	if len(r.Warnings) != 4 {
		t.Fatalf("expected 4 warnings, got %d: %v", len(r.Warnings), r.Warnings)
	}
}

func TestBuildReportHardened(t *testing.T) {
	r := BuildReport(ReportInput{
		SigningAlgorithm:     "HS256",
		Issuer:               "credcore",
		Audience:             "web",
		PreviousKeyCount:     1,
		ResetTTL:             15 * time.Minute,
		ResetSingleUse:       true,
		ResetRequestLimit:    3,
		LoginThrottleEnabled: true,
		MaxLoginAttempts:     5,
		LoginCooldown:        time.Minute,
		AuditEnabled:         true,
	})

	if !r.KeyRotationActive || !r.ResetRateLimitActive || !r.LoginThrottleActive {
		t.Fatalf("expected hardening flags set: %+v", r)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", r.Warnings)
	}
}

func TestBuildReportLegacyRegistrationNeedsCipher(t *testing.T) {
	r := BuildReport(ReportInput{AllowLegacyRegistration: true})
	if r.LegacyRegistration {
		t.Fatal("legacy registration reported without a cipher")
	}
}
