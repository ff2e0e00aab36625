// Package security summarises an engine's hardening posture.
//
// BuildReport turns resolved configuration into a Report with a flat set of
// flags and human-readable warnings for the options left at their permissive
// defaults. The root package exposes it as Engine.SecurityReport and the
// daemon logs it once at startup.
package security
