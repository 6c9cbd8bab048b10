package domain

import "errors"

var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrConsistency = errors.New("inconsistent mailbox state")
	ErrGateway     = errors.New("notification gateway failure")
	ErrStore       = errors.New("storage failure")
)
