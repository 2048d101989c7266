package repository

import "errors"

// ErrNotFound indicates an entity was not located.
var ErrNotFound = errors.New("repository: not found")

// ErrInvalidArgument indicates the store rejected the supplied values.
var ErrInvalidArgument = errors.New("repository: invalid argument")

// ErrConflict indicates a concurrent-update conflict the caller may retry.
var ErrConflict = errors.New("repository: conflict")
