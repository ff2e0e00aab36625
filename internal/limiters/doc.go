// Package limiters provides the Redis-backed reset-link request limiter.
//
// [PasswordResetLimiter] enforces a per-identity and per-IP fixed window on
// RequestReset. It is nil-safe: calling CheckRequest on a nil receiver
// returns nil, which is how the engine runs with the limit disabled.
//
// # What this package must NOT do
//
//   - Import credcore or any sibling internal package.
//   - Make policy decisions beyond counting; flow functions decide consequences.
package limiters
