// Package errors defines the sentinel errors shared by the search engine and
// its HTTP surface, plus AppError for attaching a status code and message.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrFieldNotFound  = errors.New("field not found")
	ErrInvalidLimit   = errors.New("invalid limit")
	ErrScanFailure    = errors.New("scan failure")
	ErrInvalidAddress = errors.New("invalid document address")
	ErrStorage        = errors.New("document storage error")
	ErrInvalidInput   = errors.New("invalid input")
	ErrIndexClosed    = errors.New("index closed")
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

// HTTPStatusCode maps an engine error onto the status the HTTP layer reports.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrFieldNotFound), errors.Is(err, ErrInvalidLimit), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidAddress):
		return http.StatusNotFound
	case errors.Is(err, ErrIndexClosed), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
