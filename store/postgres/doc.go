// Package postgres is a PostgreSQL credcore.CredentialStore.
//
// Records live in a single credentials table created by the embedded goose
// migrations. The outstanding reset digest is a UNIQUE column, so replacing it
// on BindResetToken is what makes the previous link stop resolving, and
// ClearResetToken is a conditional UPDATE that only one concurrent caller can
// win.
package postgres
