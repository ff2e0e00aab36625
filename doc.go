// Package credcore verifies and issues credentials.
//
// It turns a password into a durable, comparison-safe secret (a salted
// argon2id digest, or an AES-GCM ciphertext for the legacy reversible
// scheme), turns a successful verification into a signed HS256 bearer token,
// and issues and confirms opaque password-reset links.
//
// Build an [Engine] with [Builder]:
//
//	engine, err := credcore.New().
//		WithConfig(cfg).
//		WithRedis(client).
//		Build()
//
// Engine methods are safe for concurrent use after Build.
//
// # Architecture boundaries
//
// credcore is the public surface: [Engine], [Builder], [Config], the
// [CredentialStore] contract and the error taxonomy. Flow orchestration,
// the Redis record codec, limiters and audit dispatch live under internal/.
// Persistence is a collaborator: the Redis store ships here, the PostgreSQL
// store in store/postgres, and any other backend may implement
// [CredentialStore].
//
// # What this package must NOT do
//
//   - Log or audit passwords, digests, ciphertexts, reset tokens or bearer tokens.
//   - Persist plain reset tokens; only their SHA-256 digest is stored.
//   - Distinguish an unknown identity from a wrong password in Verify or Login.
//
// # Performance contract
//
// ValidateToken is the hot path. It performs no store round-trip and records
// only counters and a latency histogram. Register, Verify and Login are
// dominated by one argon2id derivation each.
package credcore
