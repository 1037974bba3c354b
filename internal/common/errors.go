// Package common defines sentinel errors shared by the transports and the
// auth layer. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired = errors.New("token expired")
)
