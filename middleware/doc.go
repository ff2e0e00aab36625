// Package middleware adapts token validation to net/http.
//
// [Guard] reads the Authorization bearer token, calls ValidateToken on the
// engine, and injects the validated claims into the request context, where
// [ClaimsFromContext] retrieves them. Every failure is a bare 401; the
// reason is not disclosed to the client.
//
// # What this package must NOT do
//
//   - Parse or sign tokens itself.
//   - Touch the credential store.
package middleware
