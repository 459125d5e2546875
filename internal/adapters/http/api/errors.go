package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/textguard/internal/domain/detect"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest       = errors.New("bad request")
	ErrMissingInput     = errors.New("missing input")
	ErrFileDecode       = errors.New("file could not be decoded")
	ErrPayloadTooLarge  = errors.New("payload too large")
	ErrMethodNotAllowed = errors.New("method not allowed")
)

// NewKind returns an error of the given kind tagged with the operation.
func NewKind(op string, kind error) error {
	return fmt.Errorf("%s: %w", op, kind)
}

// WrapKind tags err with the operation and kind, keeping both in the chain.
func WrapKind(op string, kind, err error) error {
	if err == nil {
		return NewKind(op, kind)
	}
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// statusFor maps an error chain onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, ErrMissingInput),
		errors.Is(err, detect.ErrEmptyText):
		return http.StatusBadRequest
	default:
		// Inference, decode and empty-vocabulary failures.
		return http.StatusInternalServerError
	}
}
