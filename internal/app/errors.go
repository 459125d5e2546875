package service

import "errors"

// Sentinel errors returned by the service.
var (
	ErrNotStarted      = errors.New("service not started")
	ErrInvalidEncoding = errors.New("content is not valid UTF-8")
)
