package auth

import "errors"

var (
	ErrNotFound        = errors.New("auth: not found")
	ErrConflict        = errors.New("auth: already exists")
	ErrInvalidInput    = errors.New("auth: invalid input")
	ErrAmbiguousPolicy = errors.New("auth: more than one rbac task registered for path")
)

// ErrInvalidToken indicates the bearer token failed verification. Verifiers
// wrap it with the concrete reason.
var ErrInvalidToken = errors.New("invalid token")
