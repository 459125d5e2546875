package lm

import "errors"

// Sentinel kinds for language model adapter errors.
var (
	ErrSnapshotNotFound = errors.New("model snapshot not found")
	ErrSnapshotInvalid  = errors.New("model snapshot invalid")
	ErrTokenizer        = errors.New("tokenizer unavailable")
	ErrUpstream         = errors.New("inference server error")
	ErrMalformed        = errors.New("malformed inference response")
)
