// Package common contains shared constants and sentinel errors used across
// audiodesc components.
package common

// AuthorizationHeaderName is the HTTP header carrying the bearer token.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the token in the Authorization header value.
const BearerPrefix = "Bearer "

// EnvPrefix namespaces the environment variables read by the config loader.
const EnvPrefix = "AUDIODESC_"
