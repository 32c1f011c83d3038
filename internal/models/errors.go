package models

import "errors"

// Sentinel errors shared by repositories, services and handlers.
// Wrap them with fmt.Errorf("%w: ...") to add detail.
var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTenantRequired    = errors.New("tenant is required")
)
