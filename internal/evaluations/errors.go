package evaluations

import "errors"

var (
	ErrInvalidRequest  = errors.New("invalid evaluation request")
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
	ErrAlreadyRunning  = errors.New("evaluation already running")
	ErrTerminal        = errors.New("evaluation already terminal")
	ErrNotTerminal     = errors.New("evaluation not terminal")
)
