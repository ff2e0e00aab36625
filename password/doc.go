// Package password derives and verifies salted argon2id digests.
//
// # Storage layout
//
// A credential stores the raw digest and the raw salt side by side. The work
// factor is not stored with them; it is fixed by [Config] and must stay the
// same for as long as digests produced under it need to verify. [Argon2.EncodePHC]
// and [ParsePHC] convert to and from the PHC string form
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// for export, and [Argon2.NeedsUpgrade] reports PHC strings produced with a
// weaker work factor.
//
// # What this package must NOT do
//
//   - Store or retrieve credentials.
//   - Import any other credcore package.
//   - Log passwords, salts or digests.
package password
