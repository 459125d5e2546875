package detect

import "errors"

// Sentinel kinds for detection errors.
var (
	// ErrEmptyText means the text produced no tokens to score.
	ErrEmptyText = errors.New("text produced no tokens")
	// ErrInference wraps any failure of the language model call.
	ErrInference = errors.New("language model inference failed")
	// ErrNoModel means the engine was built without a language model.
	ErrNoModel = errors.New("no language model configured")
)
