package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrChunkNotFound  = errors.New("chunk not found")
	ErrDuplicateChunk = errors.New("duplicate chunk id")
	ErrInvalidInput   = errors.New("invalid input")
	ErrPlayNotFound   = errors.New("play not found")
	ErrUnavailable    = errors.New("dependency unavailable")
	ErrInternal       = errors.New("internal error")
	ErrTimeout        = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// HTTPStatusCode maps an error to a response status. A missing chunk is an
// integration fault on the caller's side of a single call, so it surfaces as
// a server error rather than a 404.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrPlayNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrDuplicateChunk):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
