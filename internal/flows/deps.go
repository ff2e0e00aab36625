package flows

import "context"

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Register      RegisterDeps
	Verify        VerifyDeps
	Login         LoginDeps
	PasswordReset PasswordResetDeps
	Validate      ValidateDeps
}

// CredentialView is the subset of a stored credential the flows read.
type CredentialView struct {
	Identity string
	Scheme   uint8
	Secret   []byte
	Salt     []byte
}

// AuditFunc emits one audit event: type, success, identity, error, lazily built metadata.
type AuditFunc func(context.Context, string, bool, string, error, func() map[string]string)

func noopAudit(context.Context, string, bool, string, error, func() map[string]string) {}

func noopMetric(int) {}

func identityNormalizer(fn func(string) string) func(string) string {
	if fn != nil {
		return fn
	}
	return func(s string) string { return s }
}
