package detect

import "math"

// Tier maps perplexities strictly above Above to a decision Threshold.
type Tier struct {
	Above     float64
	Threshold float64
}

// DefaultTiers is the threshold lookup used by the classifier, ordered from
// the highest perplexity band down. The two lower bands share 0.5, so only
// two regimes are effective today; they stay separate rows so each band can
// be tuned on its own.
var DefaultTiers = []Tier{
	{Above: 10, Threshold: 0.6},
	{Above: 5, Threshold: 0.5},
	{Above: math.Inf(-1), Threshold: 0.5},
}

// ThresholdFor returns the threshold of the first tier whose bound perplexity
// exceeds. Values no tier matches (NaN) fall to the last tier.
func ThresholdFor(tiers []Tier, perplexity float64) float64 {
	if len(tiers) == 0 {
		tiers = DefaultTiers
	}
	for _, t := range tiers {
		if perplexity > t.Above {
			return t.Threshold
		}
	}
	return tiers[len(tiers)-1].Threshold
}
