// Package detect estimates whether a text was machine-generated from three
// statistics: language-model perplexity, sentence-length burstiness and
// hashed lexical entropy. The decision is a fixed weighted sum compared with
// a per-perplexity-tier threshold; nothing here is learned.
package detect

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Normalization divisors and weights of the combined score.
const (
	perplexityDivisor = 100
	burstinessDivisor = 10
	entropyDivisor    = 10

	perplexityWeight = 0.5
	burstinessWeight = 0.3
	entropyWeight    = 0.2
)

// Label is the outcome of a detection.
type Label string

// Detection labels.
const (
	LabelAI    Label = "AI-generated text likely."
	LabelHuman Label = "Human-written text likely."
)

// Loss is the language model's view of a text.
type Loss struct {
	// Tokens is the number of tokens the text encodes to.
	Tokens int
	// Mean is the average negative log-likelihood per predicted token.
	Mean float64
}

// LanguageModel scores a text against itself as prediction target.
type LanguageModel interface {
	// Name identifies the model, e.g. "gpt2".
	Name() string
	// Loss tokenizes text and returns its mean token loss, honoring ctx.
	Loss(ctx context.Context, text string) (Loss, error)
}

// Result holds every metric behind a detection.
type Result struct {
	Perplexity    float64 `json:"perplexity"`
	Burstiness    float64 `json:"burstiness"`
	Entropy       float64 `json:"entropy"`
	CombinedScore float64 `json:"combined_score"`
	Threshold     float64 `json:"threshold"`
	Tokens        int     `json:"tokens"`
	Label         Label   `json:"label"`
}

// Detector classifies texts.
type Detector interface {
	// Classify computes all metrics for text and labels it.
	Classify(ctx context.Context, text string) (Result, error)
	// ModelName reports the language model behind the perplexity metric.
	ModelName() string
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithLanguageModel sets the model used for perplexity.
func WithLanguageModel(lm LanguageModel) Option {
	return func(e *Engine) {
		if lm != nil {
			e.lm = lm
		}
	}
}

// WithBucketCount sets the number of hash buckets for lexical entropy.
func WithBucketCount(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.buckets = n
		}
	}
}

// WithThresholds replaces the perplexity tier table.
func WithThresholds(tiers []Tier) Option {
	return func(e *Engine) {
		if len(tiers) > 0 {
			e.tiers = append([]Tier(nil), tiers...)
		}
	}
}

// Engine implements Detector. It holds no mutable state after New returns
// and is safe for concurrent use as long as its LanguageModel is.
type Engine struct {
	lm      LanguageModel
	buckets int
	tiers   []Tier
}

// New creates an Engine with configuration options.
func New(opts ...Option) *Engine {
	e := &Engine{
		buckets: DefaultBuckets,
		tiers:   DefaultTiers,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ModelName reports the configured language model, or "" when there is none.
func (e *Engine) ModelName() string {
	if e.lm == nil {
		return ""
	}
	return e.lm.Name()
}

// Perplexity returns exp(mean token loss) of text and the token count.
func (e *Engine) Perplexity(ctx context.Context, text string) (float64, int, error) {
	if e.lm == nil {
		return 0, 0, ErrNoModel
	}
	loss, err := e.lm.Loss(ctx, text)
	if err != nil {
		if errors.Is(err, ErrEmptyText) {
			return 0, 0, err
		}
		return 0, 0, fmt.Errorf("%w: %w", ErrInference, err)
	}
	if loss.Tokens == 0 {
		return 0, 0, ErrEmptyText
	}
	return math.Exp(loss.Mean), loss.Tokens, nil
}

// Classify computes perplexity, burstiness and entropy, combines them and
// labels text. Model errors are returned as is; there is no partial result.
func (e *Engine) Classify(ctx context.Context, text string) (Result, error) {
	perplexity, tokens, err := e.Perplexity(ctx, text)
	if err != nil {
		return Result{}, err
	}
	burstiness := Burstiness(text)
	entropy := LexicalEntropy(text, e.buckets)

	combined := Combine(perplexity, burstiness, entropy)
	threshold := ThresholdFor(e.tiers, perplexity)

	label := LabelHuman
	if combined < threshold {
		label = LabelAI
	}

	return Result{
		Perplexity:    perplexity,
		Burstiness:    burstiness,
		Entropy:       entropy,
		CombinedScore: combined,
		Threshold:     threshold,
		Tokens:        tokens,
		Label:         label,
	}, nil
}

// Combine normalizes the three metrics and returns their weighted sum.
func Combine(perplexity, burstiness, entropy float64) float64 {
	return perplexityWeight*(perplexity/perplexityDivisor) +
		burstinessWeight*(burstiness/burstinessDivisor) +
		entropyWeight*(entropy/entropyDivisor)
}
