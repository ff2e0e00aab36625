// Package stores provides the Redis-backed credential store.
//
// # Design
//
// Each identity maps to one versioned, binary-encoded record. The outstanding
// password-reset token is stored only as its digest, both inside the record
// and as a reverse index key used for lookup. Mutations that touch both keys
// (BindReset, ClearReset) use WATCH/MULTI optimistic transactions with
// automatic retry on contention. Creation relies on SETNX so that two
// concurrent registrations of the same identity have exactly one winner.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for credential
// records. It does NOT hash passwords, generate tokens, or make
// authentication decisions.
//
// # What this package must NOT do
//
//   - Import credcore or any sibling internal package.
//   - Log or expose secrets, salts, or plaintext reset tokens.
//   - Use non-constant-time comparisons for digest matching.
package stores
