package registry

import "errors"

var (
	ErrDuplicateStep = errors.New("duplicate step")
	ErrUnknownStep   = errors.New("unknown step")
	ErrCycle         = errors.New("dependency cycle")
	ErrInvalidPlan   = errors.New("invalid plan")
)
