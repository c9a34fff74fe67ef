package domain

import "errors"

var (
	ErrNotFound     = errors.New("job not found")
	ErrInvalidState = errors.New("invalid state transition")
	ErrValidation   = errors.New("validation failed")
	ErrHandler      = errors.New("handler failed")
	ErrStore        = errors.New("job store failure")
)
