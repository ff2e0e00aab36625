package security

import "time"

type PasswordReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
}

// Report is a flattened view of the hardening options an engine runs with.
// It never carries secret material.
type Report struct {
	SigningAlgorithm     string
	TokenTTL             time.Duration
	IssuerBound          bool
	AudienceBound        bool
	KeyRotationActive    bool
	Argon2               PasswordReport
	LegacySchemeReadable bool
	LegacyRegistration   bool
	ResetTokenExpires    bool
	ResetTokenTTL        time.Duration
	ResetSingleUse       bool
	ResetRateLimitActive bool
	LoginThrottleActive  bool
	AuditActive          bool
	Warnings             []string
}

type ReportInput struct {
	SigningAlgorithm        string
	TokenTTL                time.Duration
	Issuer                  string
	Audience                string
	PreviousKeyCount        int
	Password                PasswordReport
	CipherConfigured        bool
	AllowLegacyRegistration bool
	ResetTTL                time.Duration
	ResetSingleUse          bool
	ResetRequestLimit       int
	LoginThrottleEnabled    bool
	MaxLoginAttempts        int
	LoginCooldown           time.Duration
	AuditEnabled            bool
}

func BuildReport(input ReportInput) Report {
	throttle := input.LoginThrottleEnabled &&
		input.MaxLoginAttempts > 0 &&
		input.LoginCooldown > 0

	r := Report{
		SigningAlgorithm:     input.SigningAlgorithm,
		TokenTTL:             input.TokenTTL,
		IssuerBound:          input.Issuer != "",
		AudienceBound:        input.Audience != "",
		KeyRotationActive:    input.PreviousKeyCount > 0,
		Argon2:               input.Password,
		LegacySchemeReadable: input.CipherConfigured,
		LegacyRegistration:   input.CipherConfigured && input.AllowLegacyRegistration,
		ResetTokenExpires:    input.ResetTTL > 0,
		ResetTokenTTL:        input.ResetTTL,
		ResetSingleUse:       input.ResetSingleUse,
		ResetRateLimitActive: input.ResetRequestLimit > 0,
		LoginThrottleActive:  throttle,
		AuditActive:          input.AuditEnabled,
	}

	if !r.IssuerBound || !r.AudienceBound {
		r.Warnings = append(r.Warnings, "tokens are not bound to an issuer and audience")
	}
	if r.LegacyRegistration {
		r.Warnings = append(r.Warnings, "new credentials may be stored with the reversible scheme")
	}
	if !r.ResetTokenExpires {
		r.Warnings = append(r.Warnings, "reset tokens never expire")
	}
	if !r.ResetSingleUse {
		r.Warnings = append(r.Warnings, "reset tokens can be confirmed more than once")
	}
	if !r.LoginThrottleActive {
		r.Warnings = append(r.Warnings, "failed logins are not throttled")
	}

	return r
}
