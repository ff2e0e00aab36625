package credcore

import "github.com/MrEthical07/credcore/internal/security"

type (
	SecurityReport = security.Report
	PasswordReport = security.PasswordReport
)

// SecurityReport summarises the hardening options the engine runs with.
func (e *Engine) SecurityReport() SecurityReport {
	if !e.ready() {
		return SecurityReport{}
	}

	cfg := e.config
	return security.BuildReport(security.ReportInput{
		SigningAlgorithm: "HS256",
		TokenTTL:         e.tokens.DefaultTTL(),
		Issuer:           cfg.JWT.Issuer,
		Audience:         cfg.JWT.Audience,
		PreviousKeyCount: len(cfg.JWT.PreviousSecrets),
		Password: security.PasswordReport{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
			MinLength:   cfg.Password.MinLength,
		},
		CipherConfigured:        e.cipher != nil,
		AllowLegacyRegistration: cfg.Cipher.AllowLegacyRegistration,
		ResetTTL:                cfg.PasswordReset.TTL,
		ResetSingleUse:          cfg.PasswordReset.SingleUse,
		ResetRequestLimit:       cfg.PasswordReset.RequestLimit,
		LoginThrottleEnabled:    e.throttle != nil,
		MaxLoginAttempts:        cfg.LoginThrottle.MaxAttempts,
		LoginCooldown:           cfg.LoginThrottle.Cooldown,
		AuditEnabled:            e.audit != nil,
	})
}
