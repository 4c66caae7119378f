package audit

import "errors"

// ErrInvalidInput is returned when a product URL or locale fails validation.
var ErrInvalidInput = errors.New("audit: invalid input")

// ErrNotFound is returned when no job exists for the requested audit key.
var ErrNotFound = errors.New("audit: not found")
