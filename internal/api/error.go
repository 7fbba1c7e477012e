package api

import (
	"fmt"
	"github.com/chatscope/chatscope/internal/errors"
	"net/http"
)

// Error is returned for every non-2xx response from the backend.
type Error struct {
	// Status is the HTTP status code.
	Status int
	// Message is the backend's "detail" or the HTTP status text when there is none.
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// DecodeError is returned when a successful JSON response body does not match the expected type.
type DecodeError struct {
	Status int
	Body   string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode response (status %d): %v", e.Status, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status of err if it is an [*Error] and 0 otherwise.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsNotFound reports whether err is an [*Error] with status 404.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}
