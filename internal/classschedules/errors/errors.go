package errors

import "errors"

var (
	ErrNotFound = errors.New("class schedule not found")

	ErrInvalidID = errors.New("invalid class schedule ID format")
)
