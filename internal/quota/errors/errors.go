package errors

import "errors"

var (
	ErrNotFound = errors.New("quota holder not found")

	ErrInvalidID = errors.New("invalid quota holder ID format")

	ErrResetApplied = errors.New("semester reset already applied for term")
)
