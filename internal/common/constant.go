// Package common contains shared constants and small helpers used across
// authkit components.
package common

const (
	// AuthHeaderName is the HTTP header carrying the bearer token on
	// outbound requests.
	AuthHeaderName = "Authorization"

	// BearerPrefix is prepended to the token in AuthHeaderName.
	BearerPrefix = "Bearer "
)
