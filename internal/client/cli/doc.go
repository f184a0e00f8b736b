// Package cli provides the interactive authkit command-line client.
//
// It wires configuration, the local session database, the HTTP gateway, and
// an interactive REPL driving the session and verification flows. Typical
// flow: restore the persisted session at startup, then execute user commands.
//
// Key features:
//   - Register / Login / Logout
//   - Email verification and password reset via OTP codes
//   - Profile view gated by the route guard
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App and runREPL for details.
package cli
