package backend

import (
	"errors"
	"fmt"
)

var ErrHTTPStatus = errors.New("unexpected http status")

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error: status %d", e.Code)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrHTTPStatus
}
