// Package similarity screens document pairs for plagiarism with TF-IDF
// cosine similarity fitted on the pair alone.
package similarity

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/viterin/vek"
)

// unitTolerance absorbs rounding when a document is compared with itself.
const unitTolerance = 1e-9

// Label describes how much of a pair overlaps.
type Label string

// Similarity labels. Scores strictly between 0 and 1 are all "partial", so
// the outer two labels are reached only by disjoint or identical vocabularies.
const (
	LabelNone    Label = "No plagiarism detected"
	LabelPartial Label = "Plagiarism detected to some extent"
	LabelFull    Label = "Plagiarism detected."
)

// Result is the outcome of comparing two documents.
type Result struct {
	Score float64 `json:"similarity_score"`
	Label Label   `json:"plagiarism_message"`
}

// Comparer compares document pairs.
type Comparer interface {
	ComparePair(a, b string) (Result, error)
}

// nonWord matches punctuation, symbols, whitespace and digits.
var nonWord = regexp.MustCompile(`[^\p{L}\p{M}_]+`)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithStopWords replaces the stop-word set. A nil set disables removal.
func WithStopWords(sw StopWords) Option {
	return func(e *Engine) {
		e.stopWords = sw
	}
}

// Engine implements Comparer. It is immutable after New.
type Engine struct {
	stopWords StopWords
}

// New creates an Engine that removes English stop words.
func New(opts ...Option) *Engine {
	e := &Engine{stopWords: EnglishStopWords()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Normalize replaces non-word characters and digits with spaces, lowercases
// and drops stop words. Tokens are joined by single spaces.
func (e *Engine) Normalize(text string) string {
	text = strings.ToLower(nonWord.ReplaceAllString(text, " "))
	fields := strings.Fields(text)
	kept := fields[:0]
	for _, f := range fields {
		if e.stopWords.Contains(f) {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

// Vectorize fits TF-IDF on exactly the two documents and returns their
// L2-normalized rows over the shared, sorted vocabulary. Tokens shorter than
// two characters are ignored. The idf is smoothed: ln((1+n)/(1+df)) + 1.
func Vectorize(a, b string) ([]float64, []float64, error) {
	docs := [2]map[string]int{termCounts(a), termCounts(b)}

	df := make(map[string]int)
	for _, tf := range docs {
		for term := range tf {
			df[term]++
		}
	}
	if len(df) == 0 {
		return nil, nil, ErrEmptyVocabulary
	}

	vocab := make([]string, 0, len(df))
	for term := range df {
		vocab = append(vocab, term)
	}
	sort.Strings(vocab)

	n := float64(len(docs))
	rows := [2][]float64{make([]float64, len(vocab)), make([]float64, len(vocab))}
	for j, term := range vocab {
		idf := math.Log((1+n)/(1+float64(df[term]))) + 1
		for i, tf := range docs {
			rows[i][j] = float64(tf[term]) * idf
		}
	}
	for _, row := range rows {
		l2Normalize(row)
	}
	return rows[0], rows[1], nil
}

// Similarity returns the cosine similarity of va and vb clamped to [0, 1].
// A zero vector has similarity 0 with anything.
func Similarity(va, vb []float64) float64 {
	if len(va) == 0 || len(va) != len(vb) || vek.Norm(va) == 0 || vek.Norm(vb) == 0 {
		return 0
	}
	s := vek.CosineSimilarity(va, vb)
	switch {
	case math.IsNaN(s) || s <= 0:
		return 0
	case s >= 1-unitTolerance:
		return 1
	}
	return s
}

// Classify maps a similarity score onto a label.
func Classify(score float64) Label {
	switch {
	case score <= 0:
		return LabelNone
	case score >= 1:
		return LabelFull
	default:
		return LabelPartial
	}
}

// ComparePair normalizes both texts, vectorizes the pair, scores and labels
// it. The result does not depend on argument order.
func (e *Engine) ComparePair(a, b string) (Result, error) {
	va, vb, err := Vectorize(e.Normalize(a), e.Normalize(b))
	if err != nil {
		return Result{}, err
	}
	score := Similarity(va, vb)
	return Result{Score: score, Label: Classify(score)}, nil
}

func termCounts(doc string) map[string]int {
	tf := make(map[string]int)
	for _, tok := range strings.Fields(doc) {
		if utf8.RuneCountInString(tok) < 2 {
			continue
		}
		tf[tok]++
	}
	return tf
}

func l2Normalize(v []float64) {
	norm := vek.Norm(v)
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] /= norm
	}
}
