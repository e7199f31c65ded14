package domain

import "errors"

// Sentinel errors for the application.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized access")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("resource already exists")
	ErrInvalidInput = errors.New("invalid input")

	// ErrIntegrity marks stored data that violates a structural invariant,
	// such as a cycle in reply links.
	ErrIntegrity = errors.New("data integrity violation")

	// ErrTransient is returned by stores when an operation failed without
	// applying anything (busy database, serialization conflict) and may be
	// retried as-is.
	ErrTransient = errors.New("temporary store failure")
)
