// Package reversible implements the legacy reversible credential scheme:
// authenticated AES-256-GCM encryption of a password under a server-held key.
//
// Anyone holding the key can recover every password protected with it. The
// scheme exists only so that credentials created before the move to salted
// argon2id digests keep verifying; new credentials should not use it.
package reversible
