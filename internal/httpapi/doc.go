// Package httpapi is the Echo transport of credcored.
//
// Handlers bind and validate JSON bodies, call the engine and return the
// shared Response envelope. Engine errors are mapped to status codes in one
// place (ErrorHandler); a handler only overrides the status where a route's
// contract differs, such as login rejecting bad credentials with 400.
package httpapi
