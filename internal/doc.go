// Package internal holds helpers private to credcore: reset token
// generation and digesting.
//
// # Sub-packages
//
//   - audit: event sinks and the async dispatcher
//   - flows: engine operations written as functions over a Deps struct
//   - limiters: Redis fixed-window limiter for reset requests
//   - rate: Redis failed-login throttle
//   - security: hardening report
//   - stores: Redis credential store
//   - logging: slog construction for binaries
//   - httpapi: Echo transport used by cmd/credcored
package internal
