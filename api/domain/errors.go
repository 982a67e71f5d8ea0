package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	// ErrInvalidState marks a lifecycle transition the state graph forbids,
	// e.g. starting a job that is not pending.
	ErrInvalidState = errors.New("invalid state")
)
