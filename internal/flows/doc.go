// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunRegister, RunVerify, RunLogin, RunRequestReset,
// RunConfirmReset, RunValidateToken) accepts a typed dependency struct and
// returns results without side-effects beyond those dependencies. The Engine
// builds the dependency structs once and delegates to them.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the credential store, password hasher,
// reversible cipher, JWT manager, limiters, audit, and metrics. They do NOT own
// any of these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import credcore (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency closures.
package flows
