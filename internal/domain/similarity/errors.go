package similarity

import "errors"

// ErrEmptyVocabulary means neither document kept a token after normalization.
var ErrEmptyVocabulary = errors.New("empty vocabulary; documents contain only stop words or no words")
