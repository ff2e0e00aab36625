// Package jwt issues and validates HS256 bearer tokens carrying an identity
// plus an open map of application claims.
//
// Validation reports three outcomes through sentinel errors: [ErrBadSignature]
// when the signature does not match the payload, [ErrExpired] when the token
// is past its expiry, and [ErrMalformed] for everything else. Issuer and
// audience are only bound when configured.
package jwt
