// Package errors defines the error kinds shared by the embedding engine and
// the HTTP boundary, and maps them to HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrNotFound         = errors.New("not in vocabulary")
	ErrInvalidInput     = errors.New("invalid input")
	ErrDegenerateVector = errors.New("degenerate vector")
	ErrUnavailable      = errors.New("vocabulary unavailable")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrInternal         = errors.New("internal error")
	ErrTimeout          = errors.New("operation timed out")
)

// NotFoundError names the tokens that could not be resolved.
type NotFoundError struct {
	Tokens []string
}

func NotFound(tokens ...string) *NotFoundError {
	return &NotFoundError{Tokens: tokens}
}

func (e *NotFoundError) Error() string {
	quoted := make([]string, len(e.Tokens))
	for i, t := range e.Tokens {
		quoted[i] = "'" + t + "'"
	}
	return fmt.Sprintf("%s not in vocabulary", strings.Join(quoted, ", "))
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// DegenerateVectorError reports a stored vector with zero norm. It points at
// corrupt vocabulary data rather than a bad request.
type DegenerateVectorError struct {
	Token string
}

func Degenerate(token string) *DegenerateVectorError {
	return &DegenerateVectorError{Token: token}
}

func (e *DegenerateVectorError) Error() string {
	return fmt.Sprintf("degenerate vector: %q has zero norm", e.Token)
}

func (e *DegenerateVectorError) Unwrap() error {
	return ErrDegenerateVector
}

// InvalidInputf wraps ErrInvalidInput with a formatted message.
func InvalidInputf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

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

// MissingTokens returns the tokens carried by a NotFoundError anywhere in the
// chain of err.
func MissingTokens(err error) []string {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return nf.Tokens
	}
	return nil
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Detail returns the client-facing message for err. Internal failures are
// not echoed back.
func Detail(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return nf.Error()
	}
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrRateLimited), errors.Is(err, ErrUnavailable):
		return err.Error()
	case errors.Is(err, ErrDegenerateVector):
		return "vocabulary data is corrupt"
	default:
		return "internal error"
	}
}
