package models

import (
	"errors"
	"fmt"
)

// ErrRequestTimeout is wrapped by every error caused by a request exceeding its deadline.
var ErrRequestTimeout = errors.New("request timed out")

// APIError is returned when the question-answering server replies with a non-2xx status.
type APIError struct {
	StatusCode int
	// Detail is the server-provided explanation, empty when the body carries none.
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("unexpected status code %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status code %d: %s", e.StatusCode, e.Detail)
}
