// Package integration provides end-to-end tests of an argon session.
// They start the full application against mock remote sources and drive it
// through its HTTP API.
package integration
