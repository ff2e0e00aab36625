// Package rate provides the Redis-backed failed-login throttle.
//
// # Window semantics
//
// Fixed-window counters. A Lua script compares and increments each counter in
// one step and sets the expiry on the first slot. Key prefixes:
//   - clf:   failed checks per identity
//   - clfip: failed checks per client IP
//
// Every attempt reserves a slot before the credential is read. Failures keep
// their slot; successes and store outages give it back, so only failures
// consume budget.
//
// # What this package must NOT do
//
//   - Implement reset-link policies (those live in internal/limiters).
//   - Be imported outside the credcore module.
package rate
